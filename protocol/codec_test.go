package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxmarket/core/agreement"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	require.Equal(t, codecName, c.Name())

	in := &Propose{
		AgreementID:       agreement.NewAgreementID(agreement.OwnerRequestor),
		ProposalID:        agreement.NewProposalID(),
		RequestorIdentity: "req-1",
		ProviderIdentity:  "prov-1",
	}
	data, err := c.Marshal(in)
	require.NoError(t, err)

	var out Propose
	require.NoError(t, c.Unmarshal(data, &out))
	require.Equal(t, in.AgreementID, out.AgreementID)
	require.Equal(t, in.RequestorIdentity, out.RequestorIdentity)
}
