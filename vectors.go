package indiserver

import (
	"sort"
	"time"
)

// State is a property vector's advisory state: Idle, Ok, Busy, or Alert.
type State string

const (
	StateIdle  = State("Idle")
	StateOk    = State("Ok")
	StateBusy  = State("Busy")
	StateAlert = State("Alert")
)

func (s State) valid() bool {
	switch s {
	case StateIdle, StateOk, StateBusy, StateAlert:
		return true
	}
	return false
}

// Permission is a vector's client-facing permission hint.
type Permission string

const (
	PermissionReadOnly  = Permission("ro")
	PermissionWriteOnly = Permission("wo")
	PermissionReadWrite = Permission("rw")
)

// SwitchRuleType constrains how many members of a switch vector may be On
// at once; enforcement is the owning driver's responsibility, this
// framework only carries and serializes the hint.
type SwitchRuleType string

const (
	RuleOneOfMany = SwitchRuleType("OneOfMany")
	RuleAtMostOne = SwitchRuleType("AtMostOne")
	RuleAnyOfMany = SwitchRuleType("AnyOfMany")
)

// SwitchValue is a switch member's value: On or Off.
type SwitchValue string

const (
	SwitchOn  = SwitchValue("On")
	SwitchOff = SwitchValue("Off")
)

const timestampLayout = "2006-01-02T15:04:05.000"

// FormatTimestamp renders t as an INDI wire timestamp: ISO-8601, UTC,
// millisecond precision. A zero Time is rendered as "now".
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timestampLayout)
}

// VectorKind identifies which of the five property vector kinds a vector
// is, for routing and dispatch purposes.
type VectorKind int

const (
	KindSwitch VectorKind = iota
	KindLight
	KindText
	KindNumber
	KindBLOB
)

// VectorBase holds the attributes common to every property vector kind:
// device, name, label, group, state, timestamp, enabled, permission, and
// an informational timeout hint.
type VectorBase struct {
	Device     string
	Name       string
	Label      string
	Group      string
	State      State
	Timestamp  time.Time
	Enabled    bool
	Permission Permission
	Timeout    *int
}

// MemberFilterMode selects which members a setXxxVector serialization
// includes.
type MemberFilterMode int

const (
	// FilterAll includes every member regardless of its Changed flag.
	FilterAll MemberFilterMode = iota
	// FilterChanged includes only members whose Changed flag is set.
	FilterChanged
	// FilterNamed includes only the members named in SendFilter.Names.
	FilterNamed
)

// SendFilter selects which members a set* serialization should carry.
type SendFilter struct {
	Mode  MemberFilterMode
	Names []string
}

func (f SendFilter) includes(name string, changed bool) bool {
	switch f.Mode {
	case FilterAll:
		return true
	case FilterChanged:
		return changed
	case FilterNamed:
		for _, n := range f.Names {
			if n == name {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// SetOptions carries the optional overrides a setXxxVector serialization
// may apply: a new message, a new state, a new timeout hint, and the
// member filter.
type SetOptions struct {
	Message *string
	State   *State
	Timeout *int
	Filter  SendFilter
}

// TextMember is one named string value inside a TextVector.
type TextMember struct {
	Name    string
	Label   string
	Value   string
	Changed bool
}

// TextVector is a property vector whose members carry free-form strings.
type TextVector struct {
	VectorBase
	Members []TextMember
}

func (v *TextVector) member(name string) *TextMember {
	for i := range v.Members {
		if v.Members[i].Name == name {
			return &v.Members[i]
		}
	}
	return nil
}

// SetMemberValue updates a member's value. Setting a value equal to the
// current one does not raise Changed.
func (v *TextVector) SetMemberValue(name, value string) error {
	m := v.member(name)
	if m == nil {
		return ErrUnknownMember
	}
	if m.Value != value {
		m.Value = value
		m.Changed = true
	}
	return nil
}

func (v *TextVector) clearChanged() {
	for i := range v.Members {
		v.Members[i].Changed = false
	}
}

// DefXML renders this vector's defTextVector element.
func (v *TextVector) DefXML() *DefTextVector {
	out := &DefTextVector{
		Device:    v.Device,
		Name:      v.Name,
		Label:     v.Label,
		Group:     v.Group,
		State:     string(v.State),
		Perm:      string(v.Permission),
		Timeout:   v.Timeout,
		Timestamp: FormatTimestamp(v.Timestamp),
	}
	for _, m := range v.Members {
		out.Texts = append(out.Texts, DefText{Name: m.Name, Label: m.Label, Value: m.Value})
	}
	return out
}

// SetXML renders this vector's setTextVector element, or nil if the
// filter selects no members.
func (v *TextVector) SetXML(opts SetOptions) *SetTextVector {
	out := &SetTextVector{
		Device:    v.Device,
		Name:      v.Name,
		State:     string(v.State),
		Timeout:   v.Timeout,
		Timestamp: FormatTimestamp(v.Timestamp),
	}
	if opts.State != nil {
		out.State = string(*opts.State)
	}
	if opts.Timeout != nil {
		out.Timeout = opts.Timeout
	}
	if opts.Message != nil {
		out.Message = *opts.Message
	}
	for _, m := range v.Members {
		if opts.Filter.includes(m.Name, m.Changed) {
			out.Texts = append(out.Texts, OneText{Name: m.Name, Value: m.Value})
		}
	}
	if len(out.Texts) == 0 {
		return nil
	}
	return out
}

// NumberMember is one named numeric value (transported as a string)
// inside a NumberVector, with auxiliary client-display attributes.
type NumberMember struct {
	Name    string
	Label   string
	Value   string
	Format  string
	Min     string
	Max     string
	Step    string
	Changed bool
}

// Float parses this member's current value using the INDI sexagesimal
// grammar.
func (m NumberMember) Float() (float64, error) {
	return ParseSexagesimal(m.Value)
}

// NumberVector is a property vector whose members carry numeric strings.
type NumberVector struct {
	VectorBase
	Members []NumberMember
}

func (v *NumberVector) member(name string) *NumberMember {
	for i := range v.Members {
		if v.Members[i].Name == name {
			return &v.Members[i]
		}
	}
	return nil
}

// SetMemberValue updates a member's raw string value.
func (v *NumberVector) SetMemberValue(name, value string) error {
	m := v.member(name)
	if m == nil {
		return ErrUnknownMember
	}
	if m.Value != value {
		m.Value = value
		m.Changed = true
	}
	return nil
}

// SetMemberFloat formats val per the member's Format and stores it.
func (v *NumberVector) SetMemberFloat(name string, val float64) error {
	m := v.member(name)
	if m == nil {
		return ErrUnknownMember
	}
	s, err := FormatNumber(val, m.Format)
	if err != nil {
		return err
	}
	return v.SetMemberValue(name, s)
}

func (v *NumberVector) clearChanged() {
	for i := range v.Members {
		v.Members[i].Changed = false
	}
}

// DefXML renders this vector's defNumberVector element.
func (v *NumberVector) DefXML() *DefNumberVector {
	out := &DefNumberVector{
		Device:    v.Device,
		Name:      v.Name,
		Label:     v.Label,
		Group:     v.Group,
		State:     string(v.State),
		Perm:      string(v.Permission),
		Timeout:   v.Timeout,
		Timestamp: FormatTimestamp(v.Timestamp),
	}
	for _, m := range v.Members {
		out.Numbers = append(out.Numbers, DefNumber{
			Name: m.Name, Label: m.Label, Format: m.Format,
			Min: m.Min, Max: m.Max, Step: m.Step, Value: m.Value,
		})
	}
	return out
}

// SetXML renders this vector's setNumberVector element, or nil if the
// filter selects no members.
func (v *NumberVector) SetXML(opts SetOptions) *SetNumberVector {
	out := &SetNumberVector{
		Device:    v.Device,
		Name:      v.Name,
		State:     string(v.State),
		Timeout:   v.Timeout,
		Timestamp: FormatTimestamp(v.Timestamp),
	}
	if opts.State != nil {
		out.State = string(*opts.State)
	}
	if opts.Timeout != nil {
		out.Timeout = opts.Timeout
	}
	if opts.Message != nil {
		out.Message = *opts.Message
	}
	for _, m := range v.Members {
		if opts.Filter.includes(m.Name, m.Changed) {
			out.Numbers = append(out.Numbers, OneNumber{Name: m.Name, Value: m.Value})
		}
	}
	if len(out.Numbers) == 0 {
		return nil
	}
	return out
}

// SwitchMember is one named on/off value inside a SwitchVector.
type SwitchMember struct {
	Name    string
	Label   string
	Value   SwitchValue
	Changed bool
}

// SwitchVector is a property vector whose members carry On/Off values,
// constrained (by convention, not enforcement) by Rule.
type SwitchVector struct {
	VectorBase
	Rule    SwitchRuleType
	Members []SwitchMember
}

func (v *SwitchVector) member(name string) *SwitchMember {
	for i := range v.Members {
		if v.Members[i].Name == name {
			return &v.Members[i]
		}
	}
	return nil
}

// SetMemberValue updates a member's on/off value.
func (v *SwitchVector) SetMemberValue(name string, value SwitchValue) error {
	if value != SwitchOn && value != SwitchOff {
		return newInvalidArgumentError("value", "switch value must be On or Off")
	}
	m := v.member(name)
	if m == nil {
		return ErrUnknownMember
	}
	if m.Value != value {
		m.Value = value
		m.Changed = true
	}
	return nil
}

func (v *SwitchVector) clearChanged() {
	for i := range v.Members {
		v.Members[i].Changed = false
	}
}

// orderedMembers returns Members reordered so that, for rule OneOfMany,
// every Off member precedes every On member, matching what client
// implementations expect on the wire. Other rules preserve declaration
// order.
func (v *SwitchVector) orderedMembers() []SwitchMember {
	if v.Rule != RuleOneOfMany {
		return v.Members
	}
	ordered := make([]SwitchMember, 0, len(v.Members))
	for _, m := range v.Members {
		if m.Value == SwitchOff {
			ordered = append(ordered, m)
		}
	}
	for _, m := range v.Members {
		if m.Value != SwitchOff {
			ordered = append(ordered, m)
		}
	}
	return ordered
}

// DefXML renders this vector's defSwitchVector element, Off members
// before On members when Rule is OneOfMany.
func (v *SwitchVector) DefXML() *DefSwitchVector {
	out := &DefSwitchVector{
		Device:    v.Device,
		Name:      v.Name,
		Label:     v.Label,
		Group:     v.Group,
		State:     string(v.State),
		Perm:      string(v.Permission),
		Rule:      string(v.Rule),
		Timeout:   v.Timeout,
		Timestamp: FormatTimestamp(v.Timestamp),
	}
	for _, m := range v.orderedMembers() {
		out.Switches = append(out.Switches, DefSwitch{Name: m.Name, Label: m.Label, Value: string(m.Value)})
	}
	return out
}

// SetXML renders this vector's setSwitchVector element, or nil if the
// filter selects no members.
func (v *SwitchVector) SetXML(opts SetOptions) *SetSwitchVector {
	out := &SetSwitchVector{
		Device:    v.Device,
		Name:      v.Name,
		State:     string(v.State),
		Timeout:   v.Timeout,
		Timestamp: FormatTimestamp(v.Timestamp),
	}
	if opts.State != nil {
		out.State = string(*opts.State)
	}
	if opts.Timeout != nil {
		out.Timeout = opts.Timeout
	}
	if opts.Message != nil {
		out.Message = *opts.Message
	}
	for _, m := range v.orderedMembers() {
		if opts.Filter.includes(m.Name, m.Changed) {
			out.Switches = append(out.Switches, OneSwitch{Name: m.Name, Value: string(m.Value)})
		}
	}
	if len(out.Switches) == 0 {
		return nil
	}
	return out
}

// LightMember is one named indicator inside a LightVector.
type LightMember struct {
	Name    string
	Label   string
	Value   State
	Changed bool
}

// LightVector is a read-only property vector of passive indicator lights.
type LightVector struct {
	VectorBase
	Members []LightMember
}

func (v *LightVector) member(name string) *LightMember {
	for i := range v.Members {
		if v.Members[i].Name == name {
			return &v.Members[i]
		}
	}
	return nil
}

// SetMemberValue updates a member's indicator state.
func (v *LightVector) SetMemberValue(name string, value State) error {
	if !value.valid() {
		return newInvalidArgumentError("value", "light value must be Idle, Ok, Busy, or Alert")
	}
	m := v.member(name)
	if m == nil {
		return ErrUnknownMember
	}
	if m.Value != value {
		m.Value = value
		m.Changed = true
	}
	return nil
}

func (v *LightVector) clearChanged() {
	for i := range v.Members {
		v.Members[i].Changed = false
	}
}

// DefXML renders this vector's defLightVector element.
func (v *LightVector) DefXML() *DefLightVector {
	out := &DefLightVector{
		Device:    v.Device,
		Name:      v.Name,
		Label:     v.Label,
		Group:     v.Group,
		State:     string(v.State),
		Timestamp: FormatTimestamp(v.Timestamp),
	}
	for _, m := range v.Members {
		out.Lights = append(out.Lights, DefLight{Name: m.Name, Label: m.Label, Value: string(m.Value)})
	}
	return out
}

// SetXML renders this vector's setLightVector element, or nil if the
// filter selects no members.
func (v *LightVector) SetXML(opts SetOptions) *SetLightVector {
	out := &SetLightVector{
		Device:    v.Device,
		Name:      v.Name,
		State:     string(v.State),
		Timestamp: FormatTimestamp(v.Timestamp),
	}
	if opts.State != nil {
		out.State = string(*opts.State)
	}
	if opts.Message != nil {
		out.Message = *opts.Message
	}
	for _, m := range v.Members {
		if opts.Filter.includes(m.Name, m.Changed) {
			out.Lights = append(out.Lights, OneLight{Name: m.Name, Value: string(m.Value)})
		}
	}
	if len(out.Lights) == 0 {
		return nil
	}
	return out
}

// BLOBMember is one named binary payload inside a BLOBVector. Value holds
// raw decoded bytes; the wire codec base64-encodes on the way out and
// decodes on the way in.
type BLOBMember struct {
	Name    string
	Label   string
	Value   []byte
	Size    int64
	Format  string
	Changed bool
}

// BLOBVector is a property vector whose members carry opaque binary data.
type BLOBVector struct {
	VectorBase
	Members []BLOBMember
}

func (v *BLOBVector) member(name string) *BLOBMember {
	for i := range v.Members {
		if v.Members[i].Name == name {
			return &v.Members[i]
		}
	}
	return nil
}

// SetMemberValue stores a member's decoded bytes, format hint, and
// uncompressed size.
func (v *BLOBVector) SetMemberValue(name string, data []byte, format string) error {
	m := v.member(name)
	if m == nil {
		return ErrUnknownMember
	}
	m.Value = data
	m.Size = int64(len(data))
	m.Format = format
	m.Changed = true
	return nil
}

func (v *BLOBVector) clearChanged() {
	for i := range v.Members {
		v.Members[i].Changed = false
	}
}

// DefXML renders this vector's defBLOBVector element. Definitions never
// carry values.
func (v *BLOBVector) DefXML() *DefBLOBVector {
	out := &DefBLOBVector{
		Device:    v.Device,
		Name:      v.Name,
		Label:     v.Label,
		Group:     v.Group,
		State:     string(v.State),
		Perm:      string(v.Permission),
		Timeout:   v.Timeout,
		Timestamp: FormatTimestamp(v.Timestamp),
	}
	for _, m := range v.Members {
		out.Blobs = append(out.Blobs, DefBLOB{Name: m.Name, Label: m.Label})
	}
	return out
}

// SetXML renders this vector's setBLOBVector element (base64-encoded
// member values), or nil if the filter selects no members.
func (v *BLOBVector) SetXML(opts SetOptions) *SetBLOBVector {
	out := &SetBLOBVector{
		Device:    v.Device,
		Name:      v.Name,
		State:     string(v.State),
		Timeout:   v.Timeout,
		Timestamp: FormatTimestamp(v.Timestamp),
	}
	if opts.State != nil {
		out.State = string(*opts.State)
	}
	if opts.Timeout != nil {
		out.Timeout = opts.Timeout
	}
	if opts.Message != nil {
		out.Message = *opts.Message
	}
	for _, m := range v.Members {
		if opts.Filter.includes(m.Name, m.Changed) {
			out.Blobs = append(out.Blobs, OneBLOB{
				Name:   m.Name,
				Size:   m.Size,
				Format: m.Format,
				Value:  encodeBase64(m.Value),
			})
		}
	}
	if len(out.Blobs) == 0 {
		return nil
	}
	return out
}

// AnyVector is implemented by all five vector kinds, for code that only
// needs the shared attributes (routing, the BLOB gate, keepalive).
type AnyVector interface {
	Kind() VectorKind
	Base() *VectorBase
}

func (v *TextVector) Kind() VectorKind   { return KindText }
func (v *NumberVector) Kind() VectorKind { return KindNumber }
func (v *SwitchVector) Kind() VectorKind { return KindSwitch }
func (v *LightVector) Kind() VectorKind  { return KindLight }
func (v *BLOBVector) Kind() VectorKind   { return KindBLOB }

func (v *TextVector) Base() *VectorBase   { return &v.VectorBase }
func (v *NumberVector) Base() *VectorBase { return &v.VectorBase }
func (v *SwitchVector) Base() *VectorBase { return &v.VectorBase }
func (v *LightVector) Base() *VectorBase  { return &v.VectorBase }
func (v *BLOBVector) Base() *VectorBase   { return &v.VectorBase }

// ClearChanged resets every member's Changed flag. Called by
// Driver.SendSet after the set* element has been queued.
func ClearChanged(v AnyVector) {
	switch vec := v.(type) {
	case *TextVector:
		vec.clearChanged()
	case *NumberVector:
		vec.clearChanged()
	case *SwitchVector:
		vec.clearChanged()
	case *LightVector:
		vec.clearChanged()
	case *BLOBVector:
		vec.clearChanged()
	}
}

// DefElement returns the wire def* element for any vector kind, boxed as
// interface{} for the XML encoder.
func DefElement(v AnyVector) interface{} {
	switch vec := v.(type) {
	case *TextVector:
		return vec.DefXML()
	case *NumberVector:
		return vec.DefXML()
	case *SwitchVector:
		return vec.DefXML()
	case *LightVector:
		return vec.DefXML()
	case *BLOBVector:
		return vec.DefXML()
	}
	return nil
}

// SetElement returns the wire set* element for any vector kind (or nil if
// the filter selects no members), boxed as interface{} for the XML
// encoder.
func SetElement(v AnyVector, opts SetOptions) interface{} {
	switch vec := v.(type) {
	case *TextVector:
		if e := vec.SetXML(opts); e != nil {
			return e
		}
	case *NumberVector:
		if e := vec.SetXML(opts); e != nil {
			return e
		}
	case *SwitchVector:
		if e := vec.SetXML(opts); e != nil {
			return e
		}
	case *LightVector:
		if e := vec.SetXML(opts); e != nil {
			return e
		}
	case *BLOBVector:
		if e := vec.SetXML(opts); e != nil {
			return e
		}
	}
	return nil
}

// Device is a named container of property vectors, owned by exactly one
// driver, external adapter, or remote connection. When Enabled is false a
// Driver ignores inbound new* for the device and does not auto-answer
// getProperties for it; SendDef, SendSet, SendMessage and the client
// keepalive re-announce do not consult the flag and still emit traffic
// for the device.
type Device struct {
	Name    string
	Enabled bool

	texts   map[string]*TextVector
	numbers map[string]*NumberVector
	switches map[string]*SwitchVector
	lights   map[string]*LightVector
	blobs    map[string]*BLOBVector

	order []string // vector names in definition order, for deterministic iteration
}

// NewDevice creates an empty, enabled device.
func NewDevice(name string) *Device {
	return &Device{
		Name:     name,
		Enabled:  true,
		texts:    map[string]*TextVector{},
		numbers:  map[string]*NumberVector{},
		switches: map[string]*SwitchVector{},
		lights:   map[string]*LightVector{},
		blobs:    map[string]*BLOBVector{},
	}
}

func (d *Device) hasVector(name string) bool {
	_, ok := d.texts[name]
	if ok {
		return true
	}
	if _, ok := d.numbers[name]; ok {
		return true
	}
	if _, ok := d.switches[name]; ok {
		return true
	}
	if _, ok := d.lights[name]; ok {
		return true
	}
	if _, ok := d.blobs[name]; ok {
		return true
	}
	return false
}

// AddTextVector registers a text vector on this device. ErrDuplicateVector
// is returned if the name is already used by another vector on this
// device (a within-device collision, distinct from the router's
// cross-owner duplicate-device fatal case).
func (d *Device) AddTextVector(v *TextVector) error {
	if d.hasVector(v.Name) {
		return ErrDuplicateVector
	}
	v.Device = d.Name
	d.texts[v.Name] = v
	d.order = append(d.order, v.Name)
	return nil
}

// AddNumberVector registers a number vector on this device.
func (d *Device) AddNumberVector(v *NumberVector) error {
	if d.hasVector(v.Name) {
		return ErrDuplicateVector
	}
	v.Device = d.Name
	d.numbers[v.Name] = v
	d.order = append(d.order, v.Name)
	return nil
}

// AddSwitchVector registers a switch vector on this device.
func (d *Device) AddSwitchVector(v *SwitchVector) error {
	if d.hasVector(v.Name) {
		return ErrDuplicateVector
	}
	v.Device = d.Name
	d.switches[v.Name] = v
	d.order = append(d.order, v.Name)
	return nil
}

// AddLightVector registers a light vector on this device. Light vectors
// are always read-only.
func (d *Device) AddLightVector(v *LightVector) error {
	if d.hasVector(v.Name) {
		return ErrDuplicateVector
	}
	v.Device = d.Name
	v.Permission = PermissionReadOnly
	d.lights[v.Name] = v
	d.order = append(d.order, v.Name)
	return nil
}

// AddBLOBVector registers a BLOB vector on this device.
func (d *Device) AddBLOBVector(v *BLOBVector) error {
	if d.hasVector(v.Name) {
		return ErrDuplicateVector
	}
	v.Device = d.Name
	d.blobs[v.Name] = v
	d.order = append(d.order, v.Name)
	return nil
}

// AddVector registers v, whatever its concrete kind, dispatching to the
// matching AddXxxVector method. Used where a vector arrives already typed
// via AnyVector, such as a placeholder built from an inbound def* event.
func (d *Device) AddVector(v AnyVector) error {
	switch vec := v.(type) {
	case *TextVector:
		return d.AddTextVector(vec)
	case *NumberVector:
		return d.AddNumberVector(vec)
	case *SwitchVector:
		return d.AddSwitchVector(vec)
	case *LightVector:
		return d.AddLightVector(vec)
	case *BLOBVector:
		return d.AddBLOBVector(vec)
	}
	return newInvalidArgumentError("vector", "unknown vector kind")
}

// Vector looks up any vector on this device by name, regardless of kind.
func (d *Device) Vector(name string) (AnyVector, bool) {
	if v, ok := d.texts[name]; ok {
		return v, true
	}
	if v, ok := d.numbers[name]; ok {
		return v, true
	}
	if v, ok := d.switches[name]; ok {
		return v, true
	}
	if v, ok := d.lights[name]; ok {
		return v, true
	}
	if v, ok := d.blobs[name]; ok {
		return v, true
	}
	return nil, false
}

// Vectors returns every vector on this device in definition order.
func (d *Device) Vectors() []AnyVector {
	out := make([]AnyVector, 0, len(d.order))
	for _, name := range d.order {
		if v, ok := d.Vector(name); ok {
			out = append(out, v)
		}
	}
	return out
}

// TextVector looks up a text vector by name.
func (d *Device) TextVector(name string) (*TextVector, bool) { v, ok := d.texts[name]; return v, ok }

// NumberVector looks up a number vector by name.
func (d *Device) NumberVector(name string) (*NumberVector, bool) {
	v, ok := d.numbers[name]
	return v, ok
}

// SwitchVector looks up a switch vector by name.
func (d *Device) SwitchVector(name string) (*SwitchVector, bool) {
	v, ok := d.switches[name]
	return v, ok
}

// LightVector looks up a light vector by name.
func (d *Device) LightVector(name string) (*LightVector, bool) {
	v, ok := d.lights[name]
	return v, ok
}

// BLOBVector looks up a BLOB vector by name.
func (d *Device) BLOBVector(name string) (*BLOBVector, bool) { v, ok := d.blobs[name]; return v, ok }

// DeleteVector removes a single vector from this device.
func (d *Device) DeleteVector(name string) {
	delete(d.texts, name)
	delete(d.numbers, name)
	delete(d.switches, name)
	delete(d.lights, name)
	delete(d.blobs, name)
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Groups returns the distinct, alphabetically sorted vector groups on
// this device, for UI-style grouping of a device's properties.
func (d *Device) Groups() []string {
	seen := map[string]bool{}
	for _, v := range d.Vectors() {
		g := v.Base().Group
		if g != "" {
			seen[g] = true
		}
	}
	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}
