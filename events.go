package indiserver

import "strings"

// The parser (framer.go) returns one of the wire struct pointers from
// xmlmodels.go directly — a tagged union with one arm per top-level tag.
// This file supplies the dispatch helpers the router and driver host need
// to work with that union generically: which device/vector an event
// names, whether it travels client→server or server→client, and
// validation of inbound new*/def*/set* payloads.

// DeviceOf returns the device attribute an event carries, if any.
func DeviceOf(ev interface{}) (string, bool) {
	switch e := ev.(type) {
	case *GetProperties:
		return e.Device, e.Device != ""
	case *EnableBLOB:
		return e.Device, true
	case *NewSwitchVector:
		return e.Device, true
	case *NewNumberVector:
		return e.Device, true
	case *NewTextVector:
		return e.Device, true
	case *NewBLOBVector:
		return e.Device, true
	case *DefSwitchVector:
		return e.Device, true
	case *DefLightVector:
		return e.Device, true
	case *DefTextVector:
		return e.Device, true
	case *DefNumberVector:
		return e.Device, true
	case *DefBLOBVector:
		return e.Device, true
	case *SetSwitchVector:
		return e.Device, true
	case *SetLightVector:
		return e.Device, true
	case *SetTextVector:
		return e.Device, true
	case *SetNumberVector:
		return e.Device, true
	case *SetBLOBVector:
		return e.Device, true
	case *Message:
		return e.Device, e.Device != ""
	case *DelProperty:
		return e.Device, e.Device != ""
	}
	return "", false
}

// VectorNameOf returns the vector name attribute an event carries, if any.
func VectorNameOf(ev interface{}) (string, bool) {
	switch e := ev.(type) {
	case *GetProperties:
		return e.Name, e.Name != ""
	case *EnableBLOB:
		return e.Name, e.Name != ""
	case *NewSwitchVector:
		return e.Name, true
	case *NewNumberVector:
		return e.Name, true
	case *NewTextVector:
		return e.Name, true
	case *NewBLOBVector:
		return e.Name, true
	case *DefSwitchVector:
		return e.Name, true
	case *DefLightVector:
		return e.Name, true
	case *DefTextVector:
		return e.Name, true
	case *DefNumberVector:
		return e.Name, true
	case *DefBLOBVector:
		return e.Name, true
	case *SetSwitchVector:
		return e.Name, true
	case *SetLightVector:
		return e.Name, true
	case *SetTextVector:
		return e.Name, true
	case *SetNumberVector:
		return e.Name, true
	case *SetBLOBVector:
		return e.Name, true
	case *DelProperty:
		return e.Name, e.Name != ""
	}
	return "", false
}

// Tag returns the element's wire tag name, for logging.
func Tag(ev interface{}) string {
	switch ev.(type) {
	case *GetProperties:
		return "getProperties"
	case *EnableBLOB:
		return "enableBLOB"
	case *NewSwitchVector:
		return "newSwitchVector"
	case *NewNumberVector:
		return "newNumberVector"
	case *NewTextVector:
		return "newTextVector"
	case *NewBLOBVector:
		return "newBLOBVector"
	case *DefSwitchVector:
		return "defSwitchVector"
	case *DefLightVector:
		return "defLightVector"
	case *DefTextVector:
		return "defTextVector"
	case *DefNumberVector:
		return "defNumberVector"
	case *DefBLOBVector:
		return "defBLOBVector"
	case *SetSwitchVector:
		return "setSwitchVector"
	case *SetLightVector:
		return "setLightVector"
	case *SetTextVector:
		return "setTextVector"
	case *SetNumberVector:
		return "setNumberVector"
	case *SetBLOBVector:
		return "setBLOBVector"
	case *Message:
		return "message"
	case *DelProperty:
		return "delProperty"
	}
	return "unknown"
}

// IsClientOrigin reports whether ev is one a client sends (new*,
// getProperties, enableBLOB) as opposed to one a driver/external/remote
// emits (def*, set*, message, delProperty). new* is never transmitted
// server→client.
func IsClientOrigin(ev interface{}) bool {
	switch ev.(type) {
	case *GetProperties, *EnableBLOB,
		*NewSwitchVector, *NewNumberVector, *NewTextVector, *NewBLOBVector:
		return true
	}
	return false
}

// IsDef reports whether ev is one of the five defXxxVector kinds.
func IsDef(ev interface{}) bool {
	switch ev.(type) {
	case *DefSwitchVector, *DefLightVector, *DefTextVector, *DefNumberVector, *DefBLOBVector:
		return true
	}
	return false
}

// IsSetBLOB reports whether ev is a setBLOBVector, the one element kind
// the BLOB gate treats specially.
func IsSetBLOB(ev interface{}) bool {
	_, ok := ev.(*SetBLOBVector)
	return ok
}

// PlaceholderVectorFromDef builds an empty vector of the kind matching ev,
// for registering a device discovered from a child/upstream def* before
// its real definition (with members, state, permission) is known or
// needed for routing purposes. It returns nil if ev is not a def*.
func PlaceholderVectorFromDef(ev interface{}) AnyVector {
	switch e := ev.(type) {
	case *DefTextVector:
		return &TextVector{VectorBase: VectorBase{Device: e.Device, Name: e.Name}}
	case *DefNumberVector:
		return &NumberVector{VectorBase: VectorBase{Device: e.Device, Name: e.Name}}
	case *DefSwitchVector:
		return &SwitchVector{VectorBase: VectorBase{Device: e.Device, Name: e.Name}}
	case *DefLightVector:
		return &LightVector{VectorBase: VectorBase{Device: e.Device, Name: e.Name}}
	case *DefBLOBVector:
		return &BLOBVector{VectorBase: VectorBase{Device: e.Device, Name: e.Name}}
	}
	return nil
}

// ApplyNewSwitchVector validates and applies an inbound newSwitchVector
// against vec, returning the member names actually changed.
func ApplyNewSwitchVector(vec *SwitchVector, ev *NewSwitchVector) ([]string, error) {
	var changed []string
	for _, s := range ev.Switches {
		val := SwitchValue(strings.TrimSpace(s.Value))
		if val != SwitchOn && val != SwitchOff {
			return changed, newParseError("newSwitchVector", "switch value must be On or Off", nil)
		}
		var prev SwitchValue
		if m := vec.member(s.Name); m != nil {
			prev = m.Value
		}
		if err := vec.SetMemberValue(s.Name, val); err != nil {
			return changed, err
		}
		if prev != val {
			changed = append(changed, s.Name)
		}
	}
	return changed, nil
}

// ApplyNewTextVector validates and applies an inbound newTextVector.
func ApplyNewTextVector(vec *TextVector, ev *NewTextVector) ([]string, error) {
	var changed []string
	for _, t := range ev.Texts {
		var prev string
		if m := vec.member(t.Name); m != nil {
			prev = m.Value
		}
		if err := vec.SetMemberValue(t.Name, t.Value); err != nil {
			return changed, err
		}
		if prev != t.Value {
			changed = append(changed, t.Name)
		}
	}
	return changed, nil
}

// ApplyNewNumberVector validates and applies an inbound newNumberVector;
// each value must parse as a valid INDI number.
func ApplyNewNumberVector(vec *NumberVector, ev *NewNumberVector) ([]string, error) {
	var changed []string
	for _, n := range ev.Numbers {
		if _, err := ParseSexagesimal(n.Value); err != nil {
			return changed, newParseError("newNumberVector", "unparsable number "+n.Value, err)
		}
		var prev string
		if m := vec.member(n.Name); m != nil {
			prev = m.Value
		}
		if err := vec.SetMemberValue(n.Name, n.Value); err != nil {
			return changed, err
		}
		if prev != n.Value {
			changed = append(changed, n.Name)
		}
	}
	return changed, nil
}

// ApplyNewBLOBVector validates and applies an inbound newBLOBVector.
func ApplyNewBLOBVector(vec *BLOBVector, ev *NewBLOBVector) ([]string, error) {
	var changed []string
	for _, b := range ev.Blobs {
		data, err := decodeBase64(b.Value)
		if err != nil {
			return changed, newParseError("newBLOBVector", "bad base64", err)
		}
		if err := vec.SetMemberValue(b.Name, data, b.Format); err != nil {
			return changed, err
		}
		changed = append(changed, b.Name)
	}
	return changed, nil
}
