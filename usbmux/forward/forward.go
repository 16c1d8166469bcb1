// Package forward makes ports of a device reachable on the host. Every TCP client accepted on the
// host port gets its own usbmuxd tunnel to the device port.
package forward

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/danielpaulus/go-usbmux/usbmux"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Forwarder accepts connections on a host port and tunnels them to a port on a device
type Forwarder struct {
	client     *usbmux.Client
	deviceID   usbmux.DeviceID
	devicePort uint16
	listener   net.Listener

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[string]io.Closer
	wg    sync.WaitGroup
}

// Forward forwards every connection made to the hostPort to whatever service runs inside an app on the device on devicePort.
// Use port 0 to let the OS pick a free host port, Addr tells which one was chosen.
func Forward(ctx context.Context, client *usbmux.Client, deviceID usbmux.DeviceID, hostPort uint16, devicePort uint16) (*Forwarder, error) {
	log.Infof("Start listening on port %d forwarding to port %d on device", hostPort, devicePort)
	l, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", hostPort))
	if err != nil {
		return nil, fmt.Errorf("failed listening on host port %d: %w", hostPort, err)
	}
	fwdCtx, cancel := context.WithCancel(ctx)
	f := &Forwarder{
		client:     client,
		deviceID:   deviceID,
		devicePort: devicePort,
		listener:   l,
		ctx:        fwdCtx,
		cancel:     cancel,
		conns:      map[string]io.Closer{},
	}
	f.wg.Add(1)
	go f.connectionAccept()
	go func() {
		<-fwdCtx.Done()
		f.listener.Close()
	}()
	return f, nil
}

// Addr is the host address the Forwarder accepts connections on
func (f *Forwarder) Addr() net.Addr {
	return f.listener.Addr()
}

// Close stops accepting new clients and closes all open tunnels
func (f *Forwarder) Close() error {
	f.cancel()
	err := f.listener.Close()
	f.mu.Lock()
	for _, c := range f.conns {
		c.Close()
	}
	f.mu.Unlock()
	f.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (f *Forwarder) connectionAccept() {
	defer f.wg.Done()
	for {
		clientConn, err := f.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || f.ctx.Err() != nil {
				log.Debugf("stopped forwarding to port %d on device %d", f.devicePort, f.deviceID)
				return
			}
			log.Errorf("Error accepting new connection %v", err)
			continue
		}
		id := uuid.New().String()
		log.WithFields(log.Fields{"conn": id, "remote": clientConn.RemoteAddr().String()}).Info("new client connected")
		f.wg.Add(1)
		go f.startNewProxyConnection(id, clientConn)
	}
}

func (f *Forwarder) startNewProxyConnection(id string, clientConn net.Conn) {
	defer f.wg.Done()
	logger := log.WithFields(log.Fields{"conn": id, "devicePort": f.devicePort, "deviceID": f.deviceID})

	tunnel, err := f.client.Connect(f.ctx, f.deviceID, f.devicePort)
	if err != nil {
		logger.WithField("err", err).Info("could not connect to device")
		clientConn.Close()
		return
	}
	logger.Info("Connected to port")
	if !f.track(id, clientConn, tunnel) {
		clientConn.Close()
		tunnel.Close()
		return
	}
	defer f.untrack(id)

	done := make(chan struct{}, 2)
	go func() {
		n, err := io.Copy(clientConn, tunnel)
		logger.WithFields(log.Fields{"bytes": n, "err": err}).Debug("device closed tunnel")
		done <- struct{}{}
	}()
	go func() {
		n, err := io.Copy(tunnel, clientConn)
		logger.WithFields(log.Fields{"bytes": n, "err": err}).Debug("host client closed connection")
		done <- struct{}{}
	}()
	<-done
	clientConn.Close()
	tunnel.Close()
	<-done
	logger.Info("connection closed")
}

type pair struct {
	a, b io.Closer
}

func (p pair) Close() error {
	errA := p.a.Close()
	errB := p.b.Close()
	return errors.Join(errA, errB)
}

func (f *Forwarder) track(id string, clientConn net.Conn, tunnel usbmux.Transport) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ctx.Err() != nil {
		return false
	}
	f.conns[id] = pair{clientConn, tunnel}
	return true
}

func (f *Forwarder) untrack(id string) {
	f.mu.Lock()
	delete(f.conns, id)
	f.mu.Unlock()
}
