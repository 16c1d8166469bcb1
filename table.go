package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/danielpaulus/go-usbmux/usbmux"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

func renderTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}
	tw := table.NewWriter()
	// plain ascii when piped into other tools
	if isatty.IsTerminal(os.Stdout.Fd()) {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleDefault)
	}

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}
	// ids are numbers
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft}})
	return tw.Render()
}

func deviceTable(devices usbmux.DeviceList) string {
	rows := make([][]string, len(devices))
	for i, d := range devices {
		rows[i] = []string{
			strconv.FormatUint(uint64(d.DeviceID), 10),
			d.Identifier,
			string(d.ConnectionType),
			d.ProductType.String(),
			fmt.Sprintf("0x%04X", d.ProductID),
			strconv.FormatUint(d.LocationID, 10),
		}
	}
	return renderTable([]string{"ID", "UDID", "Connection", "Product", "ProductID", "Location"}, rows)
}
