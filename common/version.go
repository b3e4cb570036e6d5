package common

import (
	"fmt"
	"os"
)

// Must be manually updated!
// Before releasing: verify the version number and set Prerelease to ""
// After releasing: increase the Patch number and set Prerelease to "pre"
var version = Version{
	Major:      0,
	Minor:      1,
	Patch:      0,
	Prerelease: "pre",
}

// Set via -ldflags. Example:
//   go install -ldflags "-X common.BUILDDATE=`date -u +%d/%m/%Y@%H:%M:%S` -X common.GITCOMMIT=`git rev-parse HEAD`
var (
	COMMIT    = ""
	BUILDDATE = ""
)

func GetAppVersion() Version {
	return version
}

// Version identifies the protocol-compatible release of a market peer. It
// is stamped onto outgoing Propose messages so a receiving peer can refuse
// a handshake from an incompatible major/minor release before it touches
// the state machine.
type Version struct {
	Major      uint32
	Minor      uint32
	Patch      uint32
	Prerelease string
}

func (v Version) IsCompatible(other Version) bool {
	// DISABLE_VERSION_CHECK exists for integration tests that mix build
	// versions deliberately.
	if os.Getenv("DISABLE_VERSION_CHECK") == "1" {
		return true
	}

	return v.Major == other.Major && v.Minor == other.Minor
}

func (v Version) String() string {
	pre := ""
	if v.Prerelease != "" {
		pre = "+"
	}
	return fmt.Sprintf("%d.%d.%d%s%s", v.Major, v.Minor, v.Patch, pre, v.Prerelease)
}
