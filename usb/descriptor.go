package usb

// Descriptor types.
const (
	DescTypeDevice          = 0x01
	DescTypeConfiguration   = 0x02
	DescTypeString          = 0x03
	DescTypeInterface       = 0x04
	DescTypeEndpoint        = 0x05
	DescTypeDeviceQualifier = 0x06
	DescTypeOtherSpeed      = 0x07
	DescTypeInterfacePower  = 0x08
	DescTypeHID             = 0x21
	DescTypeReport          = 0x22
	DescTypePhysical        = 0x23
	DescTypeHub             = 0x29
)

var descriptorTypeNames = map[uint8]string{
	DescTypeDevice:          "Device",
	DescTypeConfiguration:   "Configuration",
	DescTypeString:          "String",
	DescTypeInterface:       "Interface",
	DescTypeEndpoint:        "Endpoint",
	DescTypeDeviceQualifier: "Device Qualifier",
	DescTypeOtherSpeed:      "Other Speed",
	DescTypeInterfacePower:  "Interface Power",
	DescTypeHID:             "HID",
	DescTypeReport:          "HID Report",
	DescTypePhysical:        "Physical",
	DescTypeHub:             "Hub",
}

// DescriptorTypeName names a descriptor type for display.
func DescriptorTypeName(t uint8) string {
	if name, ok := descriptorTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// DeviceDescriptor is the fixed 18-byte device descriptor layout.
type DeviceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	BcdUSB            uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	BcdDevice         uint16
	Manufacturer      uint8
	Product           uint8
	SerialNumber      uint8
	NumConfigurations uint8
}

// DecodeDeviceDescriptor extracts the device descriptor fields from a raw
// descriptor payload. Multi-byte fields are little-endian.
func DecodeDeviceDescriptor(b []byte) (DeviceDescriptor, bool) {
	if len(b) < 18 {
		return DeviceDescriptor{}, false
	}
	return DeviceDescriptor{
		Length:            b[0],
		DescriptorType:    b[1],
		BcdUSB:            uint16(b[2]) | uint16(b[3])<<8,
		DeviceClass:       b[4],
		DeviceSubClass:    b[5],
		DeviceProtocol:    b[6],
		MaxPacketSize0:    b[7],
		VendorID:          uint16(b[8]) | uint16(b[9])<<8,
		ProductID:         uint16(b[10]) | uint16(b[11])<<8,
		BcdDevice:         uint16(b[12]) | uint16(b[13])<<8,
		Manufacturer:      b[14],
		Product:           b[15],
		SerialNumber:      b[16],
		NumConfigurations: b[17],
	}, true
}

// ConfigurationDescriptor is the fixed 9-byte configuration descriptor head.
type ConfigurationDescriptor struct {
	Length             uint8
	DescriptorType     uint8
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	Configuration      uint8
	Attributes         uint8
	MaxPower           uint8 // 2 mA units
}

// DecodeConfigurationDescriptor extracts the configuration descriptor head.
func DecodeConfigurationDescriptor(b []byte) (ConfigurationDescriptor, bool) {
	if len(b) < 9 {
		return ConfigurationDescriptor{}, false
	}
	return ConfigurationDescriptor{
		Length:             b[0],
		DescriptorType:     b[1],
		TotalLength:        uint16(b[2]) | uint16(b[3])<<8,
		NumInterfaces:      b[4],
		ConfigurationValue: b[5],
		Configuration:      b[6],
		Attributes:         b[7],
		MaxPower:           b[8],
	}, true
}

// InterfaceDescriptor is the fixed 9-byte interface descriptor layout.
type InterfaceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	Interface         uint8
}

// DecodeInterfaceDescriptor extracts the interface descriptor fields.
func DecodeInterfaceDescriptor(b []byte) (InterfaceDescriptor, bool) {
	if len(b) < 9 {
		return InterfaceDescriptor{}, false
	}
	return InterfaceDescriptor{
		Length:            b[0],
		DescriptorType:    b[1],
		InterfaceNumber:   b[2],
		AlternateSetting:  b[3],
		NumEndpoints:      b[4],
		InterfaceClass:    b[5],
		InterfaceSubClass: b[6],
		InterfaceProtocol: b[7],
		Interface:         b[8],
	}, true
}

// EndpointDescriptor is the fixed 7-byte endpoint descriptor layout.
type EndpointDescriptor struct {
	Length          uint8
	DescriptorType  uint8
	EndpointAddress uint8
	Attributes      uint8
	MaxPacketSize   uint16
	Interval        uint8
}

// DecodeEndpointDescriptor extracts the endpoint descriptor fields.
func DecodeEndpointDescriptor(b []byte) (EndpointDescriptor, bool) {
	if len(b) < 7 {
		return EndpointDescriptor{}, false
	}
	return EndpointDescriptor{
		Length:          b[0],
		DescriptorType:  b[1],
		EndpointAddress: b[2],
		Attributes:      b[3],
		MaxPacketSize:   uint16(b[4]) | uint16(b[5])<<8,
		Interval:        b[6],
	}, true
}
