// Package control exposes one chat session over a local line-oriented
// socket so scripts and people can drive it. Two session processes pointed
// at the same store file are the two "browser tabs" of the simulated chat.
package control

import (
	"bufio"
	"io"
	"net"
	"strings"

	"go.uber.org/zap"

	"localchat/protocol"
	"localchat/session"
)

type Server struct {
	client *session.Client
	logger *zap.Logger
}

func New(client *session.Client, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{client: client, logger: logger}
}

// Serve accepts connections until the listener closes.
func (s *Server) Serve(listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			return err
		}

		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				s.logger.Warn("control read failed", zap.Error(err))
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Credentials stay out of the log.
		if !strings.HasPrefix(line, "login|") && !strings.HasPrefix(line, "signup|") {
			s.logger.Debug("control command", zap.String("line", line))
		}

		pkt, err := protocol.ParsePacket(line + "\n")
		if err != nil {
			s.sendError(conn, "", "Invalid packet format")
			continue
		}

		s.handlePacket(pkt, conn)

		if pkt.Type == "bye" {
			return
		}
	}
}

func (s *Server) handlePacket(pkt *protocol.Packet, conn net.Conn) {
	switch pkt.Type {
	case "ping":
		s.sendPacket(conn, "pong")
	case "signup":
		s.handleSignup(pkt, conn)
	case "login":
		s.handleLogin(pkt, conn)
	case "logout":
		s.handleLogout(conn)
	case "profile":
		s.handleProfile(pkt, conn)
	case "open":
		s.handleOpen(pkt, conn)
	case "send":
		s.handleSend(pkt, conn)
	case "edit":
		s.handleEdit(pkt, conn)
	case "del":
		s.handleDelete(pkt, conn)
	case "list":
		s.handleList(conn)
	case "partners":
		s.handlePartners(conn)
	case "whoami":
		s.handleWhoami(conn)
	case "typing":
		s.handleTyping(conn)
	case "bye":
		s.sendOK(conn, "bye")
	default:
		s.sendError(conn, "", "Unknown packet type")
	}
}

func (s *Server) sendPacket(conn net.Conn, pktType string, fields ...string) {
	if _, err := conn.Write([]byte(protocol.FormatPacket(pktType, fields...))); err != nil {
		s.logger.Warn("control write failed", zap.Error(err))
	}
}

func (s *Server) sendOK(conn net.Conn, fields ...string) {
	s.sendPacket(conn, "ok", fields...)
}

func (s *Server) sendError(conn net.Conn, operation, description string) {
	if operation != "" {
		s.sendPacket(conn, "fail", operation, description)
	} else {
		s.sendPacket(conn, "fail", description)
	}
}
