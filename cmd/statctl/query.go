package main

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/gosnmp/gosnmp"
	"github.com/spf13/cobra"

	"github.com/xtxerr/statbridge/internal/registry"
)

var getCmd = &cobra.Command{
	Use:   "get OID...",
	Short: "Read values by exact OID",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *gosnmp.GoSNMP) error {
			return runGet(c, cmd.OutOrStdout(), args)
		})
	},
}

var nextCmd = &cobra.Command{
	Use:   "next OID...",
	Short: "Read the entries following each OID",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *gosnmp.GoSNMP) error {
			return runNext(c, cmd.OutOrStdout(), args)
		})
	},
}

var walkCmd = &cobra.Command{
	Use:   "walk [ROOT]",
	Short: "List every entry under ROOT (default: the node subtree)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := registry.NodeRoot.Dotted()
		if len(args) == 1 {
			root = args[0]
		}
		return withClient(func(c *gosnmp.GoSNMP) error {
			return runWalk(c, cmd.OutOrStdout(), root)
		})
	},
}

func init() {
	rootCmd.AddCommand(getCmd, nextCmd, walkCmd)
}

// newClient builds a v2c client for the --target address.
func newClient() (*gosnmp.GoSNMP, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return nil, fmt.Errorf("invalid target %q: %w", target, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid target port %q: %w", portStr, err)
	}

	return &gosnmp.GoSNMP{
		Target:    host,
		Port:      uint16(port),
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   timeout,
		Retries:   retries,
		MaxOids:   gosnmp.MaxOids,
	}, nil
}

func withClient(fn func(*gosnmp.GoSNMP) error) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	if err := c.Connect(); err != nil {
		return fmt.Errorf("connect %s: %w", target, err)
	}
	defer c.Conn.Close()
	return fn(c)
}

func runGet(c *gosnmp.GoSNMP, w io.Writer, oids []string) error {
	pkt, err := c.Get(oids)
	if err != nil {
		return err
	}
	return printPacket(w, pkt)
}

func runNext(c *gosnmp.GoSNMP, w io.Writer, oids []string) error {
	pkt, err := c.GetNext(oids)
	if err != nil {
		return err
	}
	return printPacket(w, pkt)
}

func runWalk(c *gosnmp.GoSNMP, w io.Writer, root string) error {
	n := 0
	err := c.BulkWalk(root, func(pdu gosnmp.SnmpPDU) error {
		n++
		printPDU(w, pdu)
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# %d entries\n", n)
	return nil
}

func printPacket(w io.Writer, pkt *gosnmp.SnmpPacket) error {
	if pkt.Error != gosnmp.NoError {
		return fmt.Errorf("agent returned %v at index %d", pkt.Error, pkt.ErrorIndex)
	}
	for _, pdu := range pkt.Variables {
		printPDU(w, pdu)
	}
	return nil
}

func printPDU(w io.Writer, pdu gosnmp.SnmpPDU) {
	switch pdu.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance:
		fmt.Fprintf(w, "%s = (absent)\n", pdu.Name)
	case gosnmp.EndOfMibView:
		fmt.Fprintf(w, "%s = (end of view)\n", pdu.Name)
	default:
		fmt.Fprintf(w, "%s = %s\n", pdu.Name, gosnmp.ToBigInt(pdu.Value).String())
	}
}
