package rtsp

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

// size of the datagram sent to open the return path through NAT
const natPunchSize = 12

type mediaConn struct {
	mediaID int
	rtpPort int
	remote  *net.UDPAddr
	rtpConn *net.UDPConn
	lock    sync.Mutex
}

func listenRTP(port int) (*net.UDPConn, int, error) {
	a := &net.UDPAddr{
		IP:   net.IPv4zero,
		Port: port,
	}

	conn, err := net.ListenUDP("udp4", a)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: bind udp port %d: %s", ErrSocket, port, err)
	}

	return conn, conn.LocalAddr().(*net.UDPAddr).Port, nil
}

func (c *mediaConn) close() {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.rtpConn != nil {
		c.rtpConn.Close()
		c.rtpConn = nil
	}
}

// loop reads conn until it is closed.
func (c *mediaConn) loop(t *Transport, conn *net.UDPConn) {
	defer t.wg.Done()

	buf := make([]byte, 0x10000)

	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				t.log.WithError(err).WithField("media", c.mediaID).Error("read rtp")
			}
			return
		}

		packet := make([]byte, n)
		copy(packet, buf[:n])

		if !t.emit(event{kind: eventMedia, mediaID: c.mediaID, packet: packet}) {
			return
		}
	}
}

func (t *Transport) ReserveMedia(mediaID, port int) (int, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if c, ok := t.media[mediaID]; ok {
		c.close()
		delete(t.media, mediaID)
	}

	conn, rtpPort, err := listenRTP(port)
	if err != nil {
		return 0, err
	}

	t.media[mediaID] = &mediaConn{
		mediaID: mediaID,
		rtpPort: rtpPort,
		rtpConn: conn,
	}

	return rtpPort, nil
}

func (t *Transport) OpenMedia(mediaID, localPort int, remote *net.UDPAddr) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	c, ok := t.media[mediaID]
	if !ok || c.rtpPort != localPort {
		if ok {
			c.close()
		}

		conn, rtpPort, err := listenRTP(localPort)
		if err != nil {
			delete(t.media, mediaID)
			return err
		}

		c = &mediaConn{
			mediaID: mediaID,
			rtpPort: rtpPort,
			rtpConn: conn,
		}
		t.media[mediaID] = c
	}

	if c.remote != nil {
		return fmt.Errorf("%w: media %d is already open", ErrSocket, mediaID)
	}

	if _, err := c.rtpConn.WriteToUDP(make([]byte, natPunchSize), remote); err != nil {
		return fmt.Errorf("%w: send to %s: %s", ErrSocket, remote, err)
	}

	c.remote = remote

	t.wg.Add(1)
	go c.loop(t, c.rtpConn)

	return nil
}
