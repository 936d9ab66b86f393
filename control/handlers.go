package control

import (
	"errors"
	"net"
	"strconv"

	"localchat/auth"
	"localchat/models"
	"localchat/protocol"
	"localchat/session"
)

func (s *Server) handleSignup(pkt *protocol.Packet, conn net.Conn) {
	username, password := credentials(pkt)
	if username == "" || password == "" {
		s.sendError(conn, "signup", "Invalid data")
		return
	}

	user, err := s.client.Signup(username, password)
	if errors.Is(err, auth.ErrDuplicateUsername) {
		s.sendError(conn, "signup", "Username already exists")
		return
	}
	if err != nil {
		s.sendError(conn, "signup", "Internal error")
		return
	}

	s.sendOK(conn, "signup", user.ID)
}

func (s *Server) handleLogin(pkt *protocol.Packet, conn net.Conn) {
	username, password := credentials(pkt)
	if username == "" || password == "" {
		s.sendError(conn, "login", "Invalid credentials")
		return
	}

	user, err := s.client.Login(username, password)
	if err != nil {
		s.sendError(conn, "login", "Internal error")
		return
	}
	if user == nil {
		// Wrong username or password, a normal outcome.
		s.sendError(conn, "login", "Invalid credentials")
		return
	}

	s.sendOK(conn, "login", user.ID)
}

func (s *Server) handleLogout(conn net.Conn) {
	if err := s.client.Logout(); err != nil {
		s.sendError(conn, "logout", "Internal error")
		return
	}
	s.sendOK(conn, "logout")
}

// handleProfile applies a partial profile update:
// profile|username|<name> or profile|avatar|<url>.
func (s *Server) handleProfile(pkt *protocol.Packet, conn net.Conn) {
	var upd models.UserUpdate
	switch pkt.Destination {
	case "username":
		upd.Username = &pkt.Content
	case "avatar":
		upd.Avatar = &pkt.Content
	default:
		s.sendError(conn, "profile", "Unknown field")
		return
	}

	if err := s.client.UpdateProfile(upd); err != nil {
		s.replyError(conn, "profile", err)
		return
	}
	s.sendOK(conn, "profile")
}

func (s *Server) handleOpen(pkt *protocol.Packet, conn net.Conn) {
	partnerID := pkt.Destination
	if partnerID == "" && len(pkt.Fields) > 0 {
		partnerID = pkt.Fields[0]
	}

	for _, partner := range s.client.Partners() {
		if partner.ID == partnerID {
			if err := s.client.SetActiveChat(partner); err != nil {
				s.replyError(conn, "open", err)
				return
			}
			s.sendOK(conn, "open", partner.ID)
			return
		}
	}

	s.sendError(conn, "open", "Unknown partner")
}

func (s *Server) handleSend(pkt *protocol.Packet, conn net.Conn) {
	receiverID := pkt.Destination
	text := pkt.Content

	if receiverID == "" {
		s.sendError(conn, "send", "Recipient required")
		return
	}
	if text == "" {
		s.sendError(conn, "send", "Message text required")
		return
	}

	msg, err := s.client.Send(text, receiverID)
	if err != nil {
		s.replyError(conn, "send", err)
		return
	}

	s.sendOK(conn, "send", msg.ID)
}

func (s *Server) handleEdit(pkt *protocol.Packet, conn net.Conn) {
	if pkt.Destination == "" || pkt.Content == "" {
		s.sendError(conn, "edit", "Message id and text required")
		return
	}

	if err := s.client.Edit(pkt.Destination, pkt.Content); err != nil {
		s.replyError(conn, "edit", err)
		return
	}
	s.sendOK(conn, "edit")
}

func (s *Server) handleDelete(pkt *protocol.Packet, conn net.Conn) {
	messageID := pkt.Destination
	if messageID == "" && len(pkt.Fields) > 0 {
		messageID = pkt.Fields[0]
	}
	if messageID == "" {
		s.sendError(conn, "del", "Message id required")
		return
	}

	if err := s.client.Delete(messageID); err != nil {
		s.replyError(conn, "del", err)
		return
	}
	s.sendOK(conn, "del")
}

// handleList streams the open conversation:
// msg|<id>|<sender>|<text>|<timestamp>|<edited> per message, then ok|list.
func (s *Server) handleList(conn net.Conn) {
	if s.client.CurrentUser() == nil {
		s.sendError(conn, "list", "Not authenticated")
		return
	}

	messages := s.client.VisibleMessages()
	for _, msg := range messages {
		s.sendPacket(conn, "msg",
			msg.ID,
			msg.SenderID,
			msg.Text,
			strconv.FormatInt(msg.Timestamp, 10),
			strconv.FormatBool(msg.IsEdited),
		)
	}
	s.sendOK(conn, "list", strconv.Itoa(len(messages)))
}

// handlePartners streams the contact list:
// partner|<id>|<username>|<status> per partner, then ok|partners.
func (s *Server) handlePartners(conn net.Conn) {
	partners := s.client.Partners()
	for _, partner := range partners {
		status := s.client.StatusFor(partner.ID)
		s.sendPacket(conn, "partner", partner.ID, partner.Username, status.String())
	}
	s.sendOK(conn, "partners", strconv.Itoa(len(partners)))
}

func (s *Server) handleWhoami(conn net.Conn) {
	user := s.client.CurrentUser()
	if user == nil {
		s.sendError(conn, "whoami", "Not authenticated")
		return
	}
	s.sendOK(conn, "whoami", user.ID, user.Username)
}

func (s *Server) handleTyping(conn net.Conn) {
	s.sendOK(conn, "typing", strconv.FormatBool(s.client.BotTyping()))
}

func (s *Server) replyError(conn net.Conn, operation string, err error) {
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		s.sendError(conn, operation, "Not authenticated")
	case errors.Is(err, session.ErrNotSender):
		s.sendError(conn, operation, "Not your message")
	default:
		s.sendError(conn, operation, "Internal error")
	}
}

// credentials pulls username/password out of either packet shape:
// cmd|user|pass (destination + content) or cmd|user|pass in content.
func credentials(pkt *protocol.Packet) (string, string) {
	if pkt.Destination != "" {
		return pkt.Destination, pkt.Content
	}
	if len(pkt.Fields) >= 2 {
		return pkt.Fields[0], pkt.Fields[1]
	}
	return "", ""
}
