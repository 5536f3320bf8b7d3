/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	serial "github.com/allbin/go-serialmanager"
	"github.com/allbin/go-serialmanager/internal/tui/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"
	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available serial ports",
	Long: `List all available serial ports on the system.

This command scans for communication-capable serial devices including:
- USB serial adapters (ttyUSB*)
- USB CDC/ACM devices (ttyACM*)
- Standard serial ports (ttyS*)
- ARM/Raspberry Pi ports (ttyAMA*)
- And other platform-specific serial devices

Virtual terminals and pseudo-terminals are excluded from the listing.

Examples:
  serialmgr list
  serialmgr list --table --filter usb
  serialmgr list --json`,
	Run: func(cmd *cobra.Command, args []string) {
		filterType, _ := cmd.Flags().GetString("filter")
		tableFormat, _ := cmd.Flags().GetBool("table")
		jsonFormat, _ := cmd.Flags().GetBool("json")

		ports, err := serial.AvailablePorts()
		if err != nil {
			exitf("Error listing ports: %v", err)
		}
		ports, err = filterPorts(ports, filterType)
		if err != nil {
			exitf("Error: %v", err)
		}

		switch {
		case jsonFormat:
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(ports); err != nil {
				exitf("Error encoding ports: %v", err)
			}
		case len(ports) == 0:
			if filterType != "" {
				fmt.Printf("No serial ports found matching filter: %s\n", filterType)
			} else {
				fmt.Println("No serial ports found")
			}
		case tableFormat:
			fmt.Printf("Found %d serial port(s):\n\n", len(ports))
			fmt.Println(renderTable(ports))
		default:
			for _, p := range ports {
				fmt.Println(p.Path)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("filter", "f", "", "Filter by port type: usb, standard, arm, all")
	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
	listCmd.Flags().Bool("json", false, "Print port metadata as JSON")
}

// filterPorts keeps the ports of the requested kind.
func filterPorts(ports []serial.PortInfo, filterType string) ([]serial.PortInfo, error) {
	filterType = strings.ToLower(filterType)
	if filterType == "" || filterType == "all" {
		return ports, nil
	}

	var match func(serial.PortInfo) bool
	switch filterType {
	case "usb":
		match = func(p serial.PortInfo) bool {
			name := strings.ToLower(p.Name)
			return p.Type == serial.PortTypeUSB || strings.HasPrefix(name, "ttyusb") || strings.HasPrefix(name, "ttyacm")
		}
	case "standard":
		match = func(p serial.PortInfo) bool { return strings.HasPrefix(strings.ToLower(p.Name), "ttys") }
	case "arm":
		match = func(p serial.PortInfo) bool { return strings.HasPrefix(strings.ToLower(p.Name), "ttyama") }
	default:
		return nil, fmt.Errorf("unknown filter %q (valid: usb, standard, arm, all)", filterType)
	}

	var filtered []serial.PortInfo
	for _, p := range ports {
		if match(p) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

const (
	columnKeyPort   = "port"
	columnKeyType   = "type"
	columnKeyDesc   = "desc"
	columnKeyUSB    = "usb"
	columnKeySerial = "serial"
)

func renderTable(ports []serial.PortInfo) string {
	columns := []table.Column{
		table.NewColumn(columnKeyPort, "Port", 15).WithStyle(styles.ValueStyle),
		table.NewColumn(columnKeyType, "Type", 16),
		table.NewColumn(columnKeyDesc, "Description", 28),
		table.NewColumn(columnKeyUSB, "VID:PID", 10),
		table.NewColumn(columnKeySerial, "Serial", 16),
	}

	rows := make([]table.Row, 0, len(ports))
	for _, p := range ports {
		usb := ""
		if p.VendorID != "" || p.ProductID != "" {
			usb = p.VendorID + ":" + p.ProductID
		}
		rows = append(rows, table.NewRow(table.RowData{
			columnKeyPort:   p.Name,
			columnKeyType:   getPortType(p.Name),
			columnKeyDesc:   p.Description,
			columnKeyUSB:    usb,
			columnKeySerial: p.SerialNumber,
		}))
	}

	return table.New(columns).
		WithRows(rows).
		BorderRounded().
		HeaderStyle(lipgloss.NewStyle().Bold(true).Foreground(styles.Mauve)).
		WithBaseStyle(lipgloss.NewStyle().Align(lipgloss.Left).BorderForeground(styles.Surface2)).
		View()
}

// getPortType returns a more specific type classification for the port
func getPortType(name string) string {
	name = strings.ToLower(name)
	switch {
	case strings.HasPrefix(name, "ttyusb"):
		return "USB Serial"
	case strings.HasPrefix(name, "ttyacm"):
		return "USB CDC/ACM"
	case strings.HasPrefix(name, "ttyama"):
		return "ARM Serial"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial"
	case strings.HasPrefix(name, "ttysac"):
		return "Samsung Serial"
	case strings.HasPrefix(name, "ttyths"):
		return "Tegra Serial"
	case strings.HasPrefix(name, "ttyo"):
		return "OMAP Serial"
	case strings.HasPrefix(name, "ttys"):
		return "Standard Serial"
	default:
		return "Serial Port"
	}
}
