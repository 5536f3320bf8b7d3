package serial

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// TestReadSysfsFile tests the sysfs file reading helper
func TestReadSysfsFile(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		expected string
		setup    func(string) error
	}{
		{
			name:     "normal file",
			expected: "1234",
			setup: func(path string) error {
				return os.WriteFile(path, []byte("1234\n"), 0644)
			},
		},
		{
			name:     "file with spaces",
			expected: "test value",
			setup: func(path string) error {
				return os.WriteFile(path, []byte("  test value  \n"), 0644)
			},
		},
		{
			name:     "nonexistent file",
			expected: "",
			setup:    func(path string) error { return nil },
		},
		{
			name:     "empty file",
			expected: "",
			setup: func(path string) error {
				return os.WriteFile(path, []byte(""), 0644)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testFile := filepath.Join(tmpDir, tt.name)
			if err := tt.setup(testFile); err != nil {
				t.Fatalf("Setup failed: %v", err)
			}

			result := readSysfsFile(testFile)
			if result != tt.expected {
				t.Errorf("readSysfsFile() = %q, expected %q", result, tt.expected)
			}
		})
	}
}

// mockSysfs builds root/class/tty/<name>/device pointing at target, which
// is created below root/devices.
func mockSysfs(t *testing.T, name string, target ...string) (root, resolved string) {
	t.Helper()
	root = t.TempDir()
	resolved = filepath.Join(append([]string{root, "devices"}, target...)...)
	classTty := filepath.Join(root, "class", "tty", name)
	if err := os.MkdirAll(resolved, 0755); err != nil {
		t.Fatalf("Failed to create device directory: %v", err)
	}
	if err := os.MkdirAll(classTty, 0755); err != nil {
		t.Fatalf("Failed to create class/tty directory: %v", err)
	}
	if err := os.Symlink(resolved, filepath.Join(classTty, "device")); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}
	return root, resolved
}

func writeSysfs(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for filename, content := range files {
		if err := os.WriteFile(filepath.Join(dir, filename), []byte(content+"\n"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", filename, err)
		}
	}
}

// TestEnrichUSBInfo tests USB metadata extraction with a mock sysfs structure
func TestEnrichUSBInfo(t *testing.T) {
	// ttyUSB0 sits one level below the interface directory.
	root, ttyPath := mockSysfs(t, "ttyUSB0", "pci0000:00", "usb5", "5-2.3.1", "5-2.3.1:1.0", "ttyUSB0")
	interfacePath := filepath.Dir(ttyPath)
	devicePath := filepath.Dir(interfacePath)

	writeSysfs(t, devicePath, map[string]string{
		"idVendor":     "0403",
		"idProduct":    "6010",
		"serial":       "FT123456",
		"manufacturer": "FTDI",
		"product":      "FT2232C Dual USB-UART",
		"busnum":       "5",
		"devnum":       "7",
	})
	writeSysfs(t, interfacePath, map[string]string{"bInterfaceNumber": "00"})

	info := &PortInfo{Name: "ttyUSB0", Path: "/dev/ttyUSB0"}
	enrichUSBInfo(root, info)

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"Type", string(info.Type), string(PortTypeUSB)},
		{"VendorID", info.VendorID, "0403"},
		{"ProductID", info.ProductID, "6010"},
		{"SerialNumber", info.SerialNumber, "FT123456"},
		{"InterfaceNumber", info.InterfaceNumber, "00"},
		{"BusNumber", info.BusNumber, "5"},
		{"DeviceNumber", info.DeviceNumber, "7"},
		{"Manufacturer", info.Manufacturer, "FTDI"},
		{"Product", info.Product, "FT2232C Dual USB-UART"},
	}

	for _, tt := range tests {
		if tt.got != tt.expected {
			t.Errorf("%s = %q, expected %q", tt.name, tt.got, tt.expected)
		}
	}
}

func TestEnrichUSBInfoACM(t *testing.T) {
	// ttyACM devices resolve to the interface itself.
	root, interfacePath := mockSysfs(t, "ttyACM0", "pci0000:00", "usb1", "1-4", "1-4:1.0")
	writeSysfs(t, interfacePath, map[string]string{"bInterfaceNumber": "00"})
	writeSysfs(t, filepath.Dir(interfacePath), map[string]string{
		"idVendor": "2341", "idProduct": "0043", "busnum": "1", "devnum": "12",
	})

	info := &PortInfo{Name: "ttyACM0"}
	enrichUSBInfo(root, info)

	if info.VendorID != "2341" || info.ProductID != "0043" {
		t.Errorf("got vendor %q product %q", info.VendorID, info.ProductID)
	}
	if info.BusNumber != "1" || info.DeviceNumber != "12" {
		t.Errorf("got bus %q device %q", info.BusNumber, info.DeviceNumber)
	}
}

func TestEnrichUSBInfoPCI(t *testing.T) {
	root, _ := mockSysfs(t, "ttyS4", "pci0000:00", "0000:00:16.3")
	info := &PortInfo{Name: "ttyS4"}
	enrichUSBInfo(root, info)

	if info.Type != PortTypePCI {
		t.Errorf("Type = %q, expected %q", info.Type, PortTypePCI)
	}
	if info.VendorID != "" {
		t.Errorf("PCI port should carry no USB vendor, got %q", info.VendorID)
	}
}

// TestEnrichUSBInfoGracefulFailure tests that enrichUSBInfo handles missing files gracefully
func TestEnrichUSBInfoGracefulFailure(t *testing.T) {
	info := &PortInfo{
		Name: "ttyUSB999",
		Path: "/dev/ttyUSB999",
		Type: PortTypeUnknown,
	}

	enrichUSBInfo(t.TempDir(), info)

	if info.VendorID != "" {
		t.Errorf("VendorID should be empty, got %q", info.VendorID)
	}
	if info.ProductID != "" {
		t.Errorf("ProductID should be empty, got %q", info.ProductID)
	}
	if info.SerialNumber != "" {
		t.Errorf("SerialNumber should be empty, got %q", info.SerialNumber)
	}
	if info.Type != PortTypeUnknown {
		t.Errorf("Type should stay unknown, got %q", info.Type)
	}
}

// TestUSBResetFormatting tests the USB path formatting logic
func TestUSBResetFormatting(t *testing.T) {
	tests := []struct {
		bus      string
		device   string
		expected string
		wantErr  bool
	}{
		{"5", "7", "005/007", false},
		{"1", "2", "001/002", false},
		{"123", "456", "123/456", false},
		{"1", "10", "001/010", false},
		{"x", "1", "", true},
		{"1", "", "", true},
	}

	for _, tt := range tests {
		formatted, err := formatUSBPath(tt.bus, tt.device)
		if (err != nil) != tt.wantErr {
			t.Errorf("formatUSBPath(%q, %q) error = %v, wantErr %v", tt.bus, tt.device, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrUSBInfoNotAvailable) {
			t.Errorf("formatUSBPath error should match ErrUSBInfoNotAvailable, got %v", err)
		}
		if formatted != tt.expected {
			t.Errorf("formatUSBPath(%q, %q) = %q, expected %q",
				tt.bus, tt.device, formatted, tt.expected)
		}
	}
}

// TestResetUSBDeviceBySerialNotFound tests error handling when device not found
func TestResetUSBDeviceBySerialNotFound(t *testing.T) {
	err := ResetUSBDeviceBySerial(context.Background(), "NONEXISTENT_SERIAL")
	if err == nil {
		t.Fatal("Expected error for nonexistent serial number")
	}
}

func TestResetUSBDeviceNotFound(t *testing.T) {
	err := ResetUSBDevice(context.Background(), "/dev/definitely-not-a-port")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Expected ErrDeviceNotFound, got %v", err)
	}
}

// TestIsUSBResetAvailable tests the availability check
func TestIsUSBResetAvailable(t *testing.T) {
	t.Logf("usbreset available: %v", IsUSBResetAvailable())
}
