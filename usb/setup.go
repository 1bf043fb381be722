package usb

import "fmt"

// bmRequestType masks.
const (
	dirMask       = 0x80
	typeMask      = 0x60
	recipientMask = 0x1F
)

// Direction of a control transfer's data stage.
type Direction uint8

const (
	DirOut Direction = iota // host to device
	DirIn                   // device to host
)

// RequestType is bits 5–6 of bmRequestType.
type RequestType uint8

const (
	RequestStandard RequestType = iota
	RequestClass
	RequestVendor
	RequestReserved
)

// Recipient is bits 0–4 of bmRequestType.
type Recipient uint8

const (
	RecipientDevice Recipient = iota
	RecipientInterface
	RecipientEndpoint
	RecipientOther
)

// Standard request codes.
const (
	ReqGetStatus        = 0x00
	ReqClearFeature     = 0x01
	ReqSetFeature       = 0x03
	ReqSetAddress       = 0x05
	ReqGetDescriptor    = 0x06
	ReqSetDescriptor    = 0x07
	ReqGetConfiguration = 0x08
	ReqSetConfiguration = 0x09
	ReqGetInterface     = 0x0A
	ReqSetInterface     = 0x0B
	ReqSynchFrame       = 0x0C
)

var standardRequestNames = map[uint8]string{
	ReqGetStatus:        "GET_STATUS",
	ReqClearFeature:     "CLEAR_FEATURE",
	ReqSetFeature:       "SET_FEATURE",
	ReqSetAddress:       "SET_ADDRESS",
	ReqGetDescriptor:    "GET_DESCRIPTOR",
	ReqSetDescriptor:    "SET_DESCRIPTOR",
	ReqGetConfiguration: "GET_CONFIGURATION",
	ReqSetConfiguration: "SET_CONFIGURATION",
	ReqGetInterface:     "GET_INTERFACE",
	ReqSetInterface:     "SET_INTERFACE",
	ReqSynchFrame:       "SYNCH_FRAME",
}

// Setup is a decoded 8-byte SETUP data stage.
type Setup struct {
	BMRequestType uint8
	BRequest      uint8
	WValue        uint16
	WIndex        uint16
	WLength       uint16

	Direction Direction
	Type      RequestType
	Recipient Recipient

	// RequestName and RequestDetails are filled from the standard-request
	// table for standard requests; class/vendor requests get a generic name
	// with the raw value and index in the details.
	RequestName    string
	RequestDetails string
}

func (d Direction) String() string {
	if d == DirIn {
		return "Device-to-Host"
	}
	return "Host-to-Device"
}

func (t RequestType) String() string {
	switch t {
	case RequestStandard:
		return "Standard"
	case RequestClass:
		return "Class"
	case RequestVendor:
		return "Vendor"
	default:
		return "Reserved"
	}
}

func (r Recipient) String() string {
	switch r {
	case RecipientDevice:
		return "Device"
	case RecipientInterface:
		return "Interface"
	case RecipientEndpoint:
		return "Endpoint"
	default:
		return "Other"
	}
}

// DecodeSetup decodes the 8-byte setup payload of a control transfer.
// Multi-byte fields are little-endian on the wire.
func DecodeSetup(b []byte) (Setup, bool) {
	if len(b) < 8 {
		return Setup{}, false
	}

	s := Setup{
		BMRequestType: b[0],
		BRequest:      b[1],
		WValue:        uint16(b[2]) | uint16(b[3])<<8,
		WIndex:        uint16(b[4]) | uint16(b[5])<<8,
		WLength:       uint16(b[6]) | uint16(b[7])<<8,
	}

	if s.BMRequestType&dirMask != 0 {
		s.Direction = DirIn
	}
	s.Type = RequestType(s.BMRequestType & typeMask >> 5)
	s.Recipient = Recipient(s.BMRequestType & recipientMask)
	if s.Recipient > RecipientOther {
		s.Recipient = RecipientOther
	}

	switch s.Type {
	case RequestStandard:
		name, ok := standardRequestNames[s.BRequest]
		if !ok {
			name = fmt.Sprintf("Request 0x%02X", s.BRequest)
		}
		s.RequestName = name
		s.RequestDetails = standardRequestDetails(&s)
	case RequestClass:
		s.RequestName = "Class Request"
		s.RequestDetails = fmt.Sprintf("Request: 0x%02X, Value: 0x%04X, Index: 0x%04X",
			s.BRequest, s.WValue, s.WIndex)
	case RequestVendor:
		s.RequestName = "Vendor Request"
		s.RequestDetails = fmt.Sprintf("Request: 0x%02X, Value: 0x%04X, Index: 0x%04X",
			s.BRequest, s.WValue, s.WIndex)
	default:
		s.RequestName = "Reserved Request"
	}

	return s, true
}

func standardRequestDetails(s *Setup) string {
	switch s.BRequest {
	case ReqGetDescriptor, ReqSetDescriptor:
		return fmt.Sprintf("%s Descriptor, Index %d, Length %d",
			DescriptorTypeName(uint8(s.WValue>>8)), uint8(s.WValue), s.WLength)
	case ReqSetAddress:
		return fmt.Sprintf("Address %d", s.WValue)
	case ReqSetConfiguration:
		return fmt.Sprintf("Configuration %d", uint8(s.WValue))
	case ReqClearFeature, ReqSetFeature:
		return fmt.Sprintf("Feature %d", s.WValue)
	case ReqGetInterface, ReqSetInterface:
		return fmt.Sprintf("Interface %d", s.WIndex)
	case ReqSynchFrame:
		return fmt.Sprintf("Endpoint 0x%02X", uint8(s.WIndex))
	default:
		return ""
	}
}
