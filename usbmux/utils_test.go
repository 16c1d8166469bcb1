package usbmux_test

import (
	"testing"

	"github.com/danielpaulus/go-usbmux/usbmux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"
)

type SampleData struct {
	StringValue string
	IntValue    int
	FloatValue  float64
}

func TestPlistConversion(t *testing.T) {
	testCases := map[string]struct {
		data    interface{}
		decoded interface{}
	}{
		"randomData": {SampleData{"d", 4, 0.2}, &SampleData{}},
		"Result":     {usbmux.ResultMessage{Number: 5}, &usbmux.ResultMessage{}},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			actual := usbmux.ToPlist(tc.data)
			assert.Contains(t, actual, "<?xml")
			_, err := plist.Unmarshal([]byte(actual), tc.decoded)
			require.NoError(t, err)
			switch d := tc.decoded.(type) {
			case *SampleData:
				assert.Equal(t, tc.data, *d)
			case *usbmux.ResultMessage:
				assert.Equal(t, tc.data, *d)
			}
		})
	}
}

func TestNtohs(t *testing.T) {
	testCases := map[uint16]uint16{
		62078:  0x7EF2,
		2345:   0x2909,
		0:      0,
		0xFF00: 0x00FF,
	}
	for port, expected := range testCases {
		assert.Equal(t, expected, usbmux.Ntohs(port))
	}
}
