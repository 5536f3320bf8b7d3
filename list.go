package serial

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// sysfsRoot is where USB metadata is read from.
var sysfsRoot = "/sys"

// Regular expressions for different types of serial devices
var portPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^ttyUSB\d+$`), // USB serial adapters
	regexp.MustCompile(`^ttyACM\d+$`), // USB CDC/ACM devices
	regexp.MustCompile(`^ttyS\d+$`),   // Standard serial ports
	regexp.MustCompile(`^ttyAMA\d+$`), // ARM/Raspberry Pi serial
	regexp.MustCompile(`^ttymxc\d+$`), // i.MX serial ports
	regexp.MustCompile(`^ttyO\d+$`),   // OMAP serial ports
	regexp.MustCompile(`^ttySAC\d+$`), // Samsung serial ports
	regexp.MustCompile(`^ttyTHS\d+$`), // Tegra serial ports
	regexp.MustCompile(`^rfcomm\d+$`), // Bluetooth RFCOMM
}

// ListPorts returns the serial device paths under /dev, sorted.
// Virtual terminals and pseudo-terminals are not included.
func ListPorts() ([]string, error) {
	return listPortsIn("/dev")
}

func listPortsIn(devDir string) ([]string, error) {
	entries, err := os.ReadDir(devDir)
	if err != nil {
		return nil, err
	}

	var ports []string
	for _, entry := range entries {
		if !matchesPortPattern(entry.Name()) {
			continue
		}
		fullPath := filepath.Join(devDir, entry.Name())
		// Verify it's a character device (not a directory or regular file)
		if isCharacterDevice(fullPath) {
			ports = append(ports, fullPath)
		}
	}

	sort.Strings(ports)
	return ports, nil
}

func matchesPortPattern(name string) bool {
	for _, pattern := range portPatterns {
		if pattern.MatchString(name) {
			return true
		}
	}
	return false
}

// isCharacterDevice checks if the given path is a character device
func isCharacterDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// PortType is the bus a serial port hangs off.
type PortType string

const (
	PortTypeUSB       PortType = "usb"
	PortTypePCI       PortType = "pci"
	PortTypeBluetooth PortType = "bluetooth"
	PortTypeUnknown   PortType = "unknown"
)

// PortInfo describes a serial port found on the system.
type PortInfo struct {
	Name            string   `json:"name"`
	Path            string   `json:"path"`
	Description     string   `json:"description"`
	Type            PortType `json:"type"`
	VendorID        string   `json:"vendor_id,omitempty"`
	ProductID       string   `json:"product_id,omitempty"`
	SerialNumber    string   `json:"serial_number,omitempty"`
	Manufacturer    string   `json:"manufacturer,omitempty"`
	Product         string   `json:"product,omitempty"`
	InterfaceNumber string   `json:"interface_number,omitempty"`
	BusNumber       string   `json:"bus_number,omitempty"`
	DeviceNumber    string   `json:"device_number,omitempty"`
}

// GetPortInfo returns detailed information about a specific port
func GetPortInfo(portPath string) (*PortInfo, error) {
	if !isCharacterDevice(portPath) {
		return nil, &PortError{Op: "port info", Path: portPath, Kind: ErrDeviceNotFound}
	}

	name := filepath.Base(portPath)
	info := &PortInfo{
		Name:        name,
		Path:        portPath,
		Description: getPortDescription(name),
		Type:        PortTypeUnknown,
	}
	enrichUSBInfo(sysfsRoot, info)
	return info, nil
}

// AvailablePorts lists every serial port with whatever metadata the
// platform exposes. On Linux sysfs is authoritative; the enumerator fills
// in ports and USB identifiers sysfs did not provide.
func AvailablePorts() ([]PortInfo, error) {
	byPath := make(map[string]*PortInfo)
	var order []string

	if runtime.GOOS == "linux" {
		paths, err := ListPorts()
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			info, err := GetPortInfo(p)
			if err != nil {
				continue
			}
			byPath[p] = info
			order = append(order, p)
		}
	}

	details, err := enumerator.GetDetailedPortsList()
	if err != nil && len(order) == 0 {
		return nil, &PortError{Op: "list ports", Kind: ErrIO, Err: err}
	}
	for _, d := range details {
		info, ok := byPath[d.Name]
		if !ok {
			name := filepath.Base(d.Name)
			info = &PortInfo{Name: name, Path: d.Name, Description: getPortDescription(name), Type: PortTypeUnknown}
			byPath[d.Name] = info
			order = append(order, d.Name)
		}
		if !d.IsUSB {
			continue
		}
		info.Type = PortTypeUSB
		if info.VendorID == "" {
			info.VendorID = strings.ToLower(d.VID)
		}
		if info.ProductID == "" {
			info.ProductID = strings.ToLower(d.PID)
		}
		if info.SerialNumber == "" {
			info.SerialNumber = d.SerialNumber
		}
	}

	sort.Strings(order)
	ports := make([]PortInfo, 0, len(order))
	for _, p := range order {
		ports = append(ports, *byPath[p])
	}
	return ports, nil
}

// getPortDescription provides human-readable descriptions for different port types
func getPortDescription(name string) string {
	switch {
	case strings.HasPrefix(name, "ttyUSB"):
		return "USB Serial Port"
	case strings.HasPrefix(name, "ttyACM"):
		return "USB CDC/ACM Device"
	case strings.HasPrefix(name, "ttyAMA"):
		return "ARM Serial Port"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial Port"
	case strings.HasPrefix(name, "ttySAC"):
		return "Samsung Serial Port"
	case strings.HasPrefix(name, "ttyTHS"):
		return "Tegra Serial Port"
	case strings.HasPrefix(name, "ttyO"):
		return "OMAP Serial Port"
	case strings.HasPrefix(name, "ttyS"):
		return "Standard Serial Port"
	case strings.HasPrefix(name, "rfcomm"):
		return "Bluetooth Serial Port"
	default:
		return "Serial Port"
	}
}

// enrichUSBInfo fills bus type and USB metadata from sysfs under root.
//
// class/tty/<name>/device resolves to the tty's interface (USB) or port
// device. For USB, the interface directory holds bInterfaceNumber and its
// parent holds the device attributes.
func enrichUSBInfo(root string, info *PortInfo) {
	resolved, err := filepath.EvalSymlinks(filepath.Join(root, "class", "tty", info.Name, "device"))
	if err != nil {
		if strings.HasPrefix(info.Name, "rfcomm") {
			info.Type = PortTypeBluetooth
		}
		return
	}

	switch {
	case strings.Contains(resolved, "/usb"):
		info.Type = PortTypeUSB
	case strings.Contains(resolved, "bluetooth"):
		info.Type = PortTypeBluetooth
	case strings.Contains(resolved, "/pci"):
		info.Type = PortTypePCI
	}
	if info.Type != PortTypeUSB {
		return
	}

	// ttyUSB devices resolve one level below the interface.
	interfacePath := resolved
	if readSysfsFile(filepath.Join(interfacePath, "bInterfaceNumber")) == "" {
		interfacePath = filepath.Dir(resolved)
	}
	info.InterfaceNumber = readSysfsFile(filepath.Join(interfacePath, "bInterfaceNumber"))

	usbDevicePath := filepath.Dir(interfacePath)
	info.VendorID = readSysfsFile(filepath.Join(usbDevicePath, "idVendor"))
	info.ProductID = readSysfsFile(filepath.Join(usbDevicePath, "idProduct"))
	info.SerialNumber = readSysfsFile(filepath.Join(usbDevicePath, "serial"))
	info.Manufacturer = readSysfsFile(filepath.Join(usbDevicePath, "manufacturer"))
	info.Product = readSysfsFile(filepath.Join(usbDevicePath, "product"))
	info.BusNumber = readSysfsFile(filepath.Join(usbDevicePath, "busnum"))
	info.DeviceNumber = readSysfsFile(filepath.Join(usbDevicePath, "devnum"))
}

// readSysfsFile returns the trimmed contents of path, or "" if unreadable.
func readSysfsFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
