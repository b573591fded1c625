package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testMatrix() VersionMatrix {
	return NewVersionMatrix("https://example.com/update",
		VersionRule{Component: "android", MinMajor: 1, MaxMajor: 5},
		VersionRule{Component: "controller", MinMajor: 1, MaxMajor: 5},
	)
}

func TestCheckClientOutdated(t *testing.T) {
	m := testMatrix()
	verr := m.CheckClient(&ClientVersion{Major: 0, Minor: 9, Component: "android"})
	require.NotNil(t, verr)
	require.Equal(t, "outdated_client", verr.Code)
}

func TestCheckClientAcceptsInRange(t *testing.T) {
	m := testMatrix()
	verr := m.CheckClient(&ClientVersion{Major: 2, Minor: 0, Component: "android"})
	require.Nil(t, verr)
}

func TestCheckClientNilOrUnknownComponentPasses(t *testing.T) {
	m := testMatrix()
	require.Nil(t, m.CheckClient(nil))
	require.Nil(t, m.CheckClient(&ClientVersion{Major: 0, Minor: 1, Component: "desktop"}))
}

func TestCheckPairOutdatedRemote(t *testing.T) {
	m := testMatrix()
	controller := &ClientVersion{Major: 2, Component: "controller"}
	phone := &ClientVersion{Major: 0, Component: "android"}
	verr := m.CheckPair(controller, phone)
	require.NotNil(t, verr)
	require.Equal(t, "outdated_remote", verr.Code)
}

func TestCheckPairOutdatedClient(t *testing.T) {
	m := testMatrix()
	controller := &ClientVersion{Major: 0, Component: "controller"}
	phone := &ClientVersion{Major: 2, Component: "android"}
	verr := m.CheckPair(controller, phone)
	require.NotNil(t, verr)
	require.Equal(t, "outdated_client", verr.Code)
}

func TestCheckPairBothOutdated(t *testing.T) {
	m := testMatrix()
	controller := &ClientVersion{Major: 0, Component: "controller"}
	phone := &ClientVersion{Major: 0, Component: "android"}
	verr := m.CheckPair(controller, phone)
	require.NotNil(t, verr)
	require.Equal(t, "both_outdated", verr.Code)
}

func TestCheckPairNilVersionsAreCompatible(t *testing.T) {
	m := testMatrix()
	require.Nil(t, m.CheckPair(nil, nil))
}
