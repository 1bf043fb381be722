package usb

import (
	"strings"
	"testing"
)

// getDescriptorSetup is a standard GET_DESCRIPTOR(Device) request:
// bmRequestType 0x80, bRequest 0x06, wValue 0x0100, wLength 18.
var getDescriptorSetup = []byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x12, 0x00}

func TestDecodeSetupStandard(t *testing.T) {
	s, ok := DecodeSetup(getDescriptorSetup)
	if !ok {
		t.Fatal("setup rejected")
	}
	if s.Direction != DirIn {
		t.Errorf("direction = %v, want Device-to-Host", s.Direction)
	}
	if s.Type != RequestStandard {
		t.Errorf("type = %v, want Standard", s.Type)
	}
	if s.Recipient != RecipientDevice {
		t.Errorf("recipient = %v, want Device", s.Recipient)
	}
	if s.WValue != 0x0100 || s.WLength != 18 {
		t.Errorf("wValue=%#x wLength=%d", s.WValue, s.WLength)
	}
	if s.RequestName != "GET_DESCRIPTOR" {
		t.Errorf("name = %q, want GET_DESCRIPTOR", s.RequestName)
	}
	if !strings.Contains(s.RequestDetails, "Device Descriptor") {
		t.Errorf("details = %q, want device descriptor mention", s.RequestDetails)
	}
}

func TestDecodeSetupSetAddress(t *testing.T) {
	s, ok := DecodeSetup([]byte{0x00, 0x05, 0x07, 0x00, 0x00, 0x00, 0x00, 0x00})
	if !ok {
		t.Fatal("setup rejected")
	}
	if s.RequestName != "SET_ADDRESS" || s.RequestDetails != "Address 7" {
		t.Errorf("name=%q details=%q", s.RequestName, s.RequestDetails)
	}
	if s.Direction != DirOut {
		t.Errorf("direction = %v, want Host-to-Device", s.Direction)
	}
}

func TestDecodeSetupClassAndVendor(t *testing.T) {
	// class request to an interface (e.g. HID SET_IDLE)
	s, ok := DecodeSetup([]byte{0x21, 0x0A, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00})
	if !ok {
		t.Fatal("setup rejected")
	}
	if s.Type != RequestClass || s.RequestName != "Class Request" {
		t.Errorf("type=%v name=%q", s.Type, s.RequestName)
	}
	if s.Recipient != RecipientInterface {
		t.Errorf("recipient = %v, want Interface", s.Recipient)
	}
	if !strings.Contains(s.RequestDetails, "0x0A") {
		t.Errorf("details = %q, want raw request value", s.RequestDetails)
	}

	s, ok = DecodeSetup([]byte{0xC0, 0x42, 0x34, 0x12, 0x78, 0x56, 0x00, 0x00})
	if !ok {
		t.Fatal("setup rejected")
	}
	if s.Type != RequestVendor || s.RequestName != "Vendor Request" {
		t.Errorf("type=%v name=%q", s.Type, s.RequestName)
	}
	if !strings.Contains(s.RequestDetails, "0x1234") || !strings.Contains(s.RequestDetails, "0x5678") {
		t.Errorf("details = %q, want raw value and index", s.RequestDetails)
	}
}

func TestDecodeSetupShort(t *testing.T) {
	if _, ok := DecodeSetup([]byte{0x80, 0x06}); ok {
		t.Error("short setup accepted")
	}
}

func TestDecodeDeviceDescriptor(t *testing.T) {
	raw := []byte{
		18, DescTypeDevice,
		0x00, 0x02, // bcdUSB 2.00
		0x00, 0x00, 0x00, 64,
		0x8A, 0x2E, // idVendor 0x2E8A
		0x03, 0x00, // idProduct 0x0003
		0x00, 0x01,
		1, 2, 3, 1,
	}
	d, ok := DecodeDeviceDescriptor(raw)
	if !ok {
		t.Fatal("descriptor rejected")
	}
	if d.BcdUSB != 0x0200 || d.VendorID != 0x2E8A || d.ProductID != 0x0003 {
		t.Errorf("descriptor = %+v", d)
	}
	if d.MaxPacketSize0 != 64 || d.NumConfigurations != 1 {
		t.Errorf("descriptor = %+v", d)
	}

	if _, ok := DecodeDeviceDescriptor(raw[:10]); ok {
		t.Error("truncated device descriptor accepted")
	}
}

func TestDecodeConfigurationDescriptor(t *testing.T) {
	raw := []byte{9, DescTypeConfiguration, 0x22, 0x00, 1, 1, 0, 0xA0, 50}
	c, ok := DecodeConfigurationDescriptor(raw)
	if !ok {
		t.Fatal("descriptor rejected")
	}
	if c.TotalLength != 0x0022 || c.NumInterfaces != 1 || c.MaxPower != 50 {
		t.Errorf("descriptor = %+v", c)
	}
}

func TestDecodeEndpointDescriptor(t *testing.T) {
	raw := []byte{7, DescTypeEndpoint, 0x81, 0x03, 0x08, 0x00, 10}
	e, ok := DecodeEndpointDescriptor(raw)
	if !ok {
		t.Fatal("descriptor rejected")
	}
	if e.EndpointAddress != 0x81 || e.MaxPacketSize != 8 || e.Interval != 10 {
		t.Errorf("descriptor = %+v", e)
	}
}
