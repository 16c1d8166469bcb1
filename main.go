package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/danielpaulus/go-usbmux/peertalk"
	"github.com/danielpaulus/go-usbmux/restapi/api"
	"github.com/danielpaulus/go-usbmux/usbmux"
	"github.com/danielpaulus/go-usbmux/usbmux/forward"
	"github.com/docopt/docopt-go"
	log "github.com/sirupsen/logrus"
)

// JSONdisabled enables or disables output in JSON format
var JSONdisabled = false

const version = "local-build"

const usage = `go-usbmux %s

Usage:
  usbmux listen [options]
  usbmux list [options] [--details]
  usbmux forward [options] <deviceID> <hostPort> <devicePort>
  usbmux peertalk [options] <deviceID> <devicePort> [<text>]
  usbmux serve [options] [--address=<address>]
  usbmux -h | --help
  usbmux --version | version [options]

Options:
  -v --verbose          Enable Debug Logging.
  -t --trace            Enable Trace Logging (dump every message).
  --nojson              Disable JSON output (default).
  -h --help             Show this screen.
  --config=<file>       Read usbmuxd settings from a .yaml or .toml file.
  --socket=<address>    usbmuxd address, f.ex. unix:///var/run/usbmuxd or tcp://127.0.0.1:27015.

The commands work as following:
	The default output of all commands is JSON. Should you prefer human readable output, specify the --nojson option with your command.
	Specify -v for debug logging and -t for dumping every message.

   usbmux listen [options]                                    Keeps a persistent connection open and notifies about newly connected or disconnected devices.
   usbmux list [options] [--details]                          Prints a list of all connected device's udids. If --details is specified, it includes all usbmuxd properties.
   usbmux forward [options] <deviceID> <hostPort> <devicePort>  Similar to iproxy, forward TCP connections on hostPort to devicePort on the device.
   usbmux peertalk [options] <deviceID> <devicePort> [<text>] Sends a text frame to a peertalk app on the device and prints every frame it answers with.
   usbmux serve [options] [--address=<address>]               Starts the REST API, defaults to :8080.
   usbmux -h | --help                                         Prints this screen.
   usbmux --version | version [options]                       Prints the version

`

func main() {
	Main()
}

// Main Exports main for testing
func Main() {
	arguments, err := docopt.ParseArgs(fmt.Sprintf(usage, version), os.Args[1:], version)
	if err != nil {
		log.Fatal(err)
	}
	disableJSON, _ := arguments.Bool("--nojson")
	if disableJSON {
		JSONdisabled = true
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}

	traceLevelEnabled, _ := arguments.Bool("--trace")
	if traceLevelEnabled {
		log.Info("Set Trace mode")
		log.SetLevel(log.TraceLevel)
	} else {
		verboseLoggingEnabledLong, _ := arguments.Bool("--verbose")
		if verboseLoggingEnabledLong {
			log.Info("Set Debug mode")
			log.SetLevel(log.DebugLevel)
		}
	}
	log.Debug(arguments)

	shouldPrintVersionNoDashes, _ := arguments.Bool("version")
	shouldPrintVersion, _ := arguments.Bool("--version")
	if shouldPrintVersionNoDashes || shouldPrintVersion {
		printVersion()
		return
	}

	configPath, _ := arguments.String("--config")
	socket, _ := arguments.String("--socket")
	cfg, err := loadConfig(configPath, socket)
	if err != nil {
		failWithError("invalid configuration", err)
	}
	client, err := usbmux.NewClient(cfg)
	if err != nil {
		failWithError("invalid usbmuxd address", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, _ := arguments.Bool("listen")
	if b {
		startListening(ctx, client)
		return
	}

	b, _ = arguments.Bool("list")
	if b {
		details, _ := arguments.Bool("--details")
		printDeviceList(ctx, client, details)
		return
	}

	b, _ = arguments.Bool("forward")
	if b {
		deviceID := parseDeviceID(arguments)
		hostPort := parsePort(arguments, "<hostPort>")
		devicePort := parsePort(arguments, "<devicePort>")
		startForwarding(ctx, client, deviceID, hostPort, devicePort)
		return
	}

	b, _ = arguments.Bool("peertalk")
	if b {
		deviceID := parseDeviceID(arguments)
		devicePort := parsePort(arguments, "<devicePort>")
		text, _ := arguments.String("<text>")
		if text == "" {
			text = "Hello from go-usbmux!"
		}
		runPeertalk(ctx, client, deviceID, devicePort, text)
		return
	}

	b, _ = arguments.Bool("serve")
	if b {
		address, _ := arguments.String("--address")
		api.SetVersion(version)
		err := api.Serve(ctx, client, address)
		if err != nil {
			failWithError("REST API failed", err)
		}
		return
	}
}

func parseDeviceID(arguments docopt.Opts) usbmux.DeviceID {
	s, _ := arguments.String("<deviceID>")
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		failWithError("invalid deviceID", err)
	}
	return usbmux.DeviceID(id)
}

func parsePort(arguments docopt.Opts, name string) uint16 {
	s, _ := arguments.String(name)
	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		failWithError("invalid port "+name, err)
	}
	return uint16(port)
}

func printVersion() {
	versionMap := map[string]interface{}{
		"version": version,
	}
	if JSONdisabled {
		fmt.Println(version)
	} else {
		fmt.Println(convertToJSONString(versionMap))
	}
}

func printDeviceList(ctx context.Context, client *usbmux.Client, details bool) {
	deviceList, err := client.ListDevices(ctx)
	if err != nil {
		failWithError("failed getting device list", err)
	}

	if details {
		if JSONdisabled {
			fmt.Println(deviceTable(deviceList))
		} else {
			fmt.Println(convertToJSONString(map[string]usbmux.DeviceList{"deviceList": deviceList}))
		}
		return
	}
	if JSONdisabled {
		fmt.Print(deviceList.String())
	} else {
		fmt.Println(convertToJSONString(udidMap(deviceList)))
	}
}

func udidMap(deviceList usbmux.DeviceList) map[string][]string {
	udids := make([]string, len(deviceList))
	for i, d := range deviceList {
		udids[i] = d.Identifier
	}
	return map[string][]string{"deviceList": udids}
}

// startListening prints every device event until ctx is done. Lost usbmuxd connections are
// re-established after three seconds.
func startListening(ctx context.Context, client *usbmux.Client) {
	for ctx.Err() == nil {
		listener, err := client.Listen(ctx)
		if err != nil {
			log.Errorf("could not listen on %s with err %+v, will retry in 3 seconds...", client.Config().Address, err)
			if !sleep(ctx, 3*time.Second) {
				return
			}
			continue
		}
		for {
			event, err := listener.WaitEvent(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.WithError(err).Error("Stopped listening because of error")
				}
				break
			}
			if JSONdisabled {
				fmt.Println(event.String())
			} else {
				fmt.Println(convertToJSONString(event))
			}
		}
		listener.Close()
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func startForwarding(ctx context.Context, client *usbmux.Client, deviceID usbmux.DeviceID, hostPort uint16, devicePort uint16) {
	f, err := forward.Forward(ctx, client, deviceID, hostPort, devicePort)
	if err != nil {
		failWithError("failed to forward port", err)
	}
	<-ctx.Done()
	log.Info("stopping port forward")
	f.Close()
}

func runPeertalk(ctx context.Context, client *usbmux.Client, deviceID usbmux.DeviceID, devicePort uint16, text string) {
	tunnel, err := client.Connect(ctx, deviceID, devicePort)
	if err != nil {
		failWithError("could not connect to peertalk app", err)
	}
	defer tunnel.Close()
	go func() {
		<-ctx.Done()
		tunnel.Close()
	}()

	err = peertalk.WriteFrame(tunnel, peertalk.NewTextFrame(text))
	if err != nil {
		failWithError("failed sending text", err)
	}
	for {
		frame, err := peertalk.ReadFrame(tunnel)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				log.WithError(err).Error("failed reading peertalk frame")
			}
			return
		}
		printFrame(frame)
		if frame.Type == peertalk.FrameTypePing {
			err := peertalk.WriteFrame(tunnel, peertalk.Frame{Type: peertalk.FrameTypePong, Tag: frame.Tag})
			if err != nil {
				log.WithError(err).Warn("failed answering ping")
			}
		}
	}
}

func printFrame(frame peertalk.Frame) {
	output := map[string]interface{}{"type": frame.Type.String(), "tag": frame.Tag}
	switch frame.Type {
	case peertalk.FrameTypeDeviceInfo:
		info, err := frame.DeviceInfo()
		if err != nil {
			log.WithError(err).Warn("invalid device info frame")
			return
		}
		output["deviceInfo"] = info
	case peertalk.FrameTypeTextMessage:
		text, _ := frame.Text()
		output["text"] = text
	}
	if JSONdisabled {
		fmt.Printf("%s tag:%d %v\n", frame.Type, frame.Tag, output)
		return
	}
	fmt.Println(convertToJSONString(output))
}

func convertToJSONString(data interface{}) string {
	b, err := json.Marshal(data)
	if err != nil {
		fmt.Println(err)
		return ""
	}
	return string(b)
}

func failWithError(msg string, err error) {
	log.WithFields(log.Fields{"err": err}).Fatalf(msg)
}
