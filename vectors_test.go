package indiserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSwitchVector() *SwitchVector {
	v := &SwitchVector{
		VectorBase: VectorBase{Device: "cam", Name: "CONNECTION", Enabled: true, Permission: PermissionReadWrite},
		Rule:       RuleOneOfMany,
		Members: []SwitchMember{
			{Name: "CONNECT", Value: SwitchOff},
			{Name: "DISCONNECT", Value: SwitchOn},
		},
	}
	return v
}

func TestSwitchVectorSetMemberValueNoOpWhenUnchanged(t *testing.T) {
	v := newTestSwitchVector()
	require.NoError(t, v.SetMemberValue("DISCONNECT", SwitchOn))
	assert.False(t, v.member("DISCONNECT").Changed)
}

func TestSwitchVectorSetMemberValueMarksChanged(t *testing.T) {
	v := newTestSwitchVector()
	require.NoError(t, v.SetMemberValue("CONNECT", SwitchOn))
	assert.True(t, v.member("CONNECT").Changed)
}

func TestSwitchVectorSetMemberValueRejectsBadValue(t *testing.T) {
	v := newTestSwitchVector()
	err := v.SetMemberValue("CONNECT", SwitchValue("Sideways"))
	assert.Error(t, err)
}

func TestSwitchVectorSetMemberValueUnknownMember(t *testing.T) {
	v := newTestSwitchVector()
	err := v.SetMemberValue("NOPE", SwitchOn)
	assert.ErrorIs(t, err, ErrUnknownMember)
}

func TestSwitchVectorOrderedMembersOffBeforeOn(t *testing.T) {
	v := newTestSwitchVector()
	require.NoError(t, v.SetMemberValue("CONNECT", SwitchOn))
	ordered := v.orderedMembers()
	require.Len(t, ordered, 2)
	assert.Equal(t, SwitchOff, ordered[0].Value)
	assert.Equal(t, SwitchOn, ordered[1].Value)
}

func TestSwitchVectorDefXMLOrdersOffBeforeOn(t *testing.T) {
	v := newTestSwitchVector()
	def := v.DefXML()
	require.Len(t, def.Switches, 2)
	assert.Equal(t, "CONNECT", def.Switches[0].Name)
	assert.Equal(t, "DISCONNECT", def.Switches[1].Name)
}

func TestSwitchVectorSetXMLFilterChangedOnlyIncludesChanged(t *testing.T) {
	v := newTestSwitchVector()
	require.NoError(t, v.SetMemberValue("CONNECT", SwitchOn))
	set := v.SetXML(SetOptions{Filter: SendFilter{Mode: FilterChanged}})
	require.NotNil(t, set)
	require.Len(t, set.Switches, 1)
	assert.Equal(t, "CONNECT", set.Switches[0].Name)
}

func TestSwitchVectorSetXMLReturnsNilWhenNothingSelected(t *testing.T) {
	v := newTestSwitchVector()
	set := v.SetXML(SetOptions{Filter: SendFilter{Mode: FilterChanged}})
	assert.Nil(t, set)
}

func TestNumberVectorSetMemberFloatUsesFormat(t *testing.T) {
	v := &NumberVector{
		VectorBase: VectorBase{Device: "mount", Name: "EQUATORIAL_EOD_COORD", Permission: PermissionReadWrite},
		Members: []NumberMember{
			{Name: "RA", Format: "%6.6m"},
		},
	}
	require.NoError(t, v.SetMemberFloat("RA", 12.5))
	assert.Equal(t, "12:30:00", v.member("RA").Value)
	assert.True(t, v.member("RA").Changed)
}

func TestNumberMemberFloatParsesSexagesimal(t *testing.T) {
	m := NumberMember{Value: "12:30:00"}
	f, err := m.Float()
	require.NoError(t, err)
	assert.InDelta(t, 12.5, f, 1e-6)
}

func TestTextVectorSetMemberValueUnknownMember(t *testing.T) {
	v := &TextVector{VectorBase: VectorBase{Device: "cam", Name: "NAME"}}
	err := v.SetMemberValue("MISSING", "x")
	assert.ErrorIs(t, err, ErrUnknownMember)
}

func TestLightVectorSetMemberValueRejectsBadState(t *testing.T) {
	v := &LightVector{
		VectorBase: VectorBase{Device: "cam", Name: "STATUS"},
		Members:    []LightMember{{Name: "POWER", Value: StateIdle}},
	}
	err := v.SetMemberValue("POWER", State("Sideways"))
	assert.Error(t, err)
}

func TestBLOBVectorDefXMLNeverCarriesValue(t *testing.T) {
	v := &BLOBVector{
		VectorBase: VectorBase{Device: "cam", Name: "IMAGE"},
		Members:    []BLOBMember{{Name: "CCD1", Value: []byte("payload")}},
	}
	def := v.DefXML()
	require.Len(t, def.Blobs, 1)
	assert.Equal(t, "CCD1", def.Blobs[0].Name)
}

func TestBLOBVectorSetXMLEncodesBase64(t *testing.T) {
	v := &BLOBVector{
		VectorBase: VectorBase{Device: "cam", Name: "IMAGE"},
		Members:    []BLOBMember{{Name: "CCD1", Value: []byte("hi"), Format: ".fits", Changed: true}},
	}
	set := v.SetXML(SetOptions{Filter: SendFilter{Mode: FilterAll}})
	require.NotNil(t, set)
	require.Len(t, set.Blobs, 1)
	assert.Equal(t, "aGk=", set.Blobs[0].Value)
}

func TestClearChangedResetsAllMembers(t *testing.T) {
	v := newTestSwitchVector()
	require.NoError(t, v.SetMemberValue("CONNECT", SwitchOn))
	ClearChanged(v)
	assert.False(t, v.member("CONNECT").Changed)
}

func TestDeviceAddVectorRejectsDuplicateName(t *testing.T) {
	d := NewDevice("cam")
	require.NoError(t, d.AddSwitchVector(&SwitchVector{VectorBase: VectorBase{Name: "CONNECTION"}}))
	err := d.AddTextVector(&TextVector{VectorBase: VectorBase{Name: "CONNECTION"}})
	assert.ErrorIs(t, err, ErrDuplicateVector)
}

func TestDeviceAddLightVectorForcesReadOnly(t *testing.T) {
	d := NewDevice("cam")
	require.NoError(t, d.AddLightVector(&LightVector{VectorBase: VectorBase{Name: "STATUS", Permission: PermissionReadWrite}}))
	v, ok := d.LightVector("STATUS")
	require.True(t, ok)
	assert.Equal(t, PermissionReadOnly, v.Permission)
}

func TestDeviceVectorsPreservesDefinitionOrder(t *testing.T) {
	d := NewDevice("cam")
	require.NoError(t, d.AddSwitchVector(&SwitchVector{VectorBase: VectorBase{Name: "B"}}))
	require.NoError(t, d.AddSwitchVector(&SwitchVector{VectorBase: VectorBase{Name: "A"}}))
	names := []string{}
	for _, v := range d.Vectors() {
		names = append(names, v.Base().Name)
	}
	assert.Equal(t, []string{"B", "A"}, names)
}

func TestDeviceDeleteVectorRemovesFromOrder(t *testing.T) {
	d := NewDevice("cam")
	require.NoError(t, d.AddSwitchVector(&SwitchVector{VectorBase: VectorBase{Name: "A"}}))
	require.NoError(t, d.AddSwitchVector(&SwitchVector{VectorBase: VectorBase{Name: "B"}}))
	d.DeleteVector("A")
	_, ok := d.Vector("A")
	assert.False(t, ok)
	assert.Len(t, d.Vectors(), 1)
}

func TestDeviceGroupsSortedAndDeduped(t *testing.T) {
	d := NewDevice("cam")
	require.NoError(t, d.AddSwitchVector(&SwitchVector{VectorBase: VectorBase{Name: "A", Group: "Main"}}))
	require.NoError(t, d.AddSwitchVector(&SwitchVector{VectorBase: VectorBase{Name: "B", Group: "Main"}}))
	require.NoError(t, d.AddSwitchVector(&SwitchVector{VectorBase: VectorBase{Name: "C", Group: "Options"}}))
	assert.Equal(t, []string{"Main", "Options"}, d.Groups())
}
