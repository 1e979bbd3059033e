package server

import (
	"encoding/json"
	"net"
	"sync"

	"github.com/life-stream-dev/gspro-osp-relay/internal/gspro"
	"github.com/life-stream-dev/gspro-osp-relay/internal/logger"
)

// ConnectionHandler serves one relay connection.
type ConnectionHandler struct {
	server *Server
	conn   net.Conn
	connID string

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newConnectionHandler(server *Server, conn net.Conn) *ConnectionHandler {
	return &ConnectionHandler{
		server: server,
		conn:   conn,
		connID: conn.RemoteAddr().String(),
	}
}

func (c *ConnectionHandler) handleFirstPacket() error {
	if len(c.server.options.Greeting) == 0 {
		return nil
	}
	data, err := encodeResponses(c.server.options.Greeting)
	if err != nil {
		logger.ErrorF("[%s] Fail to encode greeting, details: %v", c.connID, err)
		return err
	}
	return c.write(data)
}

func (c *ConnectionHandler) handlePacket() {
	decoder := json.NewDecoder(c.conn)
	for {
		var request gspro.Request
		if err := decoder.Decode(&request); err != nil {
			handleReadError(c.connID, err)
			return
		}

		c.server.publish(request)
		options := request.ShotDataOptions
		switch {
		case options.ContainsBallData || options.ContainsClubData:
			logger.InfoF("[%s] Shot #%d received", c.connID, request.ShotNumber)
			if err := c.acknowledgeShot(); err != nil {
				return
			}
		case options.IsHeartBeat != nil && *options.IsHeartBeat:
			logger.DebugF("[%s] Heartbeat, ready=%v", c.connID, flag(options.LaunchMonitorIsReady))
		default:
			logger.InfoF("[%s] Launch monitor ready=%v", c.connID, flag(options.LaunchMonitorIsReady))
		}
	}
}

func (c *ConnectionHandler) acknowledgeShot() error {
	responses := []gspro.Response{gspro.NewResponse(gspro.CodeShotReceived, "Shot received successfully")}
	if player := c.server.options.Player; player != nil {
		info := gspro.NewResponse(gspro.CodePlayerInfo, "GSPro Player Information")
		info.Player = player
		responses = append(responses, info)
	}
	data, err := encodeResponses(responses)
	if err != nil {
		return err
	}
	return c.write(data)
}

func (c *ConnectionHandler) handleConnection() {
	defer func() {
		logger.DebugF("[%s] Connection closed", c.connID)
		c.close()
	}()

	if err := c.handleFirstPacket(); err != nil {
		return
	}

	c.handlePacket()
}

func (c *ConnectionHandler) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return send(c.conn, data, c.connID)
}

func (c *ConnectionHandler) close() {
	c.closeOnce.Do(func() {
		if err := c.conn.Close(); err != nil && !isNetClosedError(err) {
			logger.WarnF("[%s] Error occured while closing connection, details: %v", c.connID, err)
		}
	})
}

func flag(v *bool) string {
	if v == nil {
		return "unset"
	}
	if *v {
		return "true"
	}
	return "false"
}
