/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"

	serial "github.com/allbin/go-serialmanager"
	"github.com/allbin/go-serialmanager/internal/tui/styles"
	"github.com/spf13/cobra"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <port>",
	Short: "Display detailed information about a serial port",
	Long: `Display detailed information about a serial port including USB metadata.

Examples:
  serialmgr info /dev/ttyUSB0
  serialmgr info /dev/ttyACM0

For USB devices, this displays vendor/product IDs, serial numbers, interface
numbers, and other USB-specific metadata extracted from sysfs.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		info, err := serial.GetPortInfo(args[0])
		if err != nil {
			exitf("Error getting port info: %v", err)
		}

		fmt.Println(styles.TitleStyle.Render("Port Information: " + info.Path))
		fmt.Println()
		field("Name", info.Name)
		field("Type", string(info.Type))
		field("Description", info.Description)

		if info.VendorID == "" && info.ProductID == "" {
			return
		}
		fmt.Println()
		fmt.Println(styles.HeaderStyle.Render("USB Device Information"))
		for _, f := range []struct{ label, value string }{
			{"Vendor ID", info.VendorID},
			{"Product ID", info.ProductID},
			{"Serial", info.SerialNumber},
			{"Interface", info.InterfaceNumber},
			{"Bus", info.BusNumber},
			{"Device", info.DeviceNumber},
			{"Manufacturer", info.Manufacturer},
			{"Product", info.Product},
		} {
			if f.value != "" {
				field(f.label, f.value)
			}
		}
	},
}

func field(label, value string) {
	fmt.Printf("  %s %s\n", styles.MutedStyle.Render(fmt.Sprintf("%-13s", label+":")), styles.ValueStyle.Render(value))
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
