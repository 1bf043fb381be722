package main

const (
	envDevice = "USBSHARK_DEVICE"
	envConfig = "USBSHARK_CONFIG"

	defaultBaud = 921600

	// Transactions kept in memory for the HTTP API and the live view.
	defaultStoreCap = 4096
)
