package agreement

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTerminationReason(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid with extra fields", `{"message":"done","code":7}`, false},
		{"plain string is rejected", `"plain string"`, true},
		{"missing message field", `{"code":7}`, true},
		{"not json at all", `not json`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, err := ParseTerminationReason(json.RawMessage(tt.payload))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrBadReason)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "done", reason.Message)
			require.JSONEq(t, tt.payload, string(reason.Raw))
		})
	}
}

func TestAgreementCounterpartIdentity(t *testing.T) {
	a := &Agreement{
		ID:                AgreementID{Owner: OwnerRequestor},
		RequestorIdentity: "req",
		ProviderIdentity:  "prov",
	}
	require.Equal(t, "prov", a.CounterpartIdentity())

	a.ID.Owner = OwnerProvider
	require.Equal(t, "req", a.CounterpartIdentity())
}
