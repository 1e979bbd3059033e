package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/life-stream-dev/gspro-osp-relay/internal/gspro"
	"github.com/life-stream-dev/gspro-osp-relay/internal/logger"
)

func send(conn net.Conn, data []byte, connID string) error {
	total := 0
	for total < len(data) {
		n, err := conn.Write(data[total:])
		if err != nil {
			logger.ErrorF("[%s] Fail to send data, details: %v", connID, err)
			return err
		}
		total += n
	}
	logger.DebugF("[%s] Send %d bytes to relay", connID, total)
	return nil
}

// encodeResponses concatenates responses with no delimiter, the way GSPro
// frames them.
func encodeResponses(responses []gspro.Response) ([]byte, error) {
	var data []byte
	for _, response := range responses {
		encoded, err := json.Marshal(response)
		if err != nil {
			return nil, fmt.Errorf("encoding response: %w", err)
		}
		data = append(data, encoded...)
	}
	return data, nil
}

func isNetClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	ok := errors.As(err, &opErr)
	return ok && opErr.Timeout()
}

func handleReadError(connID string, err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.InfoF("[%s] Relay closed connection", connID)
	case isNetClosedError(err):
		logger.DebugF("[%s] Connection closed locally", connID)
	case os.IsTimeout(err):
		logger.WarnF("[%s] Reading timeout", connID)
	default:
		logger.ErrorF("[%s] Error occured while reading request, details: %v", connID, err)
	}
}
