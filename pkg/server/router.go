package server

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/NicolasHaas/gochat/pkg/datastore"
	"github.com/NicolasHaas/gochat/pkg/model"
	"github.com/NicolasHaas/gochat/pkg/protocol"
)

// Router is the per-connection protocol state machine. Each connection is
// processed by a single sequential worker, which preserves per-sender
// ordering toward every recipient. States: unauthenticated, authenticated,
// closed (when run returns).
type Router struct {
	srv    *Server
	conn   net.Conn
	reader *protocol.Reader

	// sess is nil until a successful login; non-nil means authenticated.
	sess *Session
}

func newRouter(srv *Server, conn net.Conn) *Router {
	return &Router{
		srv:    srv,
		conn:   conn,
		reader: protocol.NewReader(conn),
	}
}

// run drives the connection to its terminal state. Connection errors, a peer
// close, and unparseable frames all end the loop; auth and group errors are
// reported as reply frames and the connection stays open.
func (rt *Router) run() {
	defer func() { _ = rt.conn.Close() }()
	defer rt.cleanup()

	remoteAddr := rt.conn.RemoteAddr().String()
	slog.Debug("new connection", "remote", remoteAddr)

	for {
		select {
		case <-rt.srv.ctx.Done():
			return
		default:
		}

		frame, err := rt.reader.ReadFrame()
		if err != nil {
			switch {
			case err == io.EOF || isClosedErr(err):
				return
			case errors.Is(err, protocol.ErrMalformedFrame) || errors.Is(err, protocol.ErrFrameTooLarge):
				slog.Debug("malformed frame, closing", "remote", remoteAddr, "err", err)
				return
			default:
				slog.Debug("read error", "remote", remoteAddr, "err", err)
				return
			}
		}

		rt.dispatch(frame)
	}
}

// cleanup runs exactly once when the connection reaches its terminal state.
// For authenticated sessions it removes the session from the registry, excises
// the user from every group, and announces the departure. The socket itself is
// released unconditionally by run's deferred Close.
func (rt *Router) cleanup() {
	rt.srv.metrics.ActiveConnections.Dec()
	rt.srv.metrics.TotalDisconnects.Inc()

	if rt.sess == nil {
		return
	}
	username := rt.sess.Username
	rt.srv.sessions.Logout(username)
	rt.srv.groups.RemoveEverywhere(username)
	slog.Info("client disconnected", "user", username)
	rt.srv.broadcast(protocol.LeaveNotice(username), username)
}

func (rt *Router) dispatch(frame *protocol.Frame) {
	switch {
	case frame.Register != nil:
		rt.handleRegister(frame.Register)
	case frame.Login != nil:
		rt.handleLogin(frame.Login)
	case frame.Send != nil:
		rt.handleSend(frame.Send)
	case frame.CreateGroup != nil:
		rt.handleCreateGroup(frame.CreateGroup)
	case frame.JoinGroup != nil:
		rt.handleJoinGroup(frame.JoinGroup)
	case frame.UserList != nil:
		rt.handleUserList()
	}
}

// reply writes to the connection. Before authentication this worker is the
// only writer; afterwards writes go through the session so they serialize
// with deliveries pushed by other workers.
func (rt *Router) reply(line string) {
	var err error
	if rt.sess != nil {
		err = rt.sess.Send(line)
	} else {
		err = protocol.WriteFrame(rt.conn, line)
	}
	if err != nil {
		slog.Debug("reply write failed", "err", err)
		_ = rt.conn.Close()
	}
}

func (rt *Router) handleRegister(auth *protocol.AuthFrame) {
	if rt.sess != nil {
		rt.reply(protocol.NotAllowed)
		return
	}
	_, err := rt.srv.store.CreateUser(auth.Username, auth.Password)
	if err != nil {
		if errors.Is(err, datastore.ErrUsernameTaken) ||
			errors.Is(err, datastore.ErrPasswordEmpty) ||
			errors.Is(err, model.ErrUsernameEmpty) ||
			errors.Is(err, model.ErrUsernameTooLong) ||
			errors.Is(err, model.ErrUsernameInvalidChars) {
			slog.Debug("registration rejected", "user", auth.Username, "err", err)
		} else {
			// Store I/O failure: fatal to this request, reported, never
			// swallowed.
			slog.Error("registration store error", "user", auth.Username, "err", err)
		}
		rt.reply(protocol.RegisterFail)
		return
	}
	rt.srv.metrics.Registrations.Inc()
	slog.Info("user registered", "user", strings.TrimSpace(auth.Username))
	rt.reply(protocol.RegisterSuccess)
}

func (rt *Router) handleLogin(auth *protocol.AuthFrame) {
	if rt.sess != nil {
		rt.reply(protocol.NotAllowed)
		return
	}
	username := strings.TrimSpace(auth.Username)

	if err := rt.srv.store.Authenticate(username, auth.Password); err != nil {
		if !errors.Is(err, datastore.ErrInvalidCredentials) {
			slog.Error("login store error", "user", username, "err", err)
		}
		rt.srv.metrics.AuthFailures.WithLabelValues("invalid_credentials").Inc()
		rt.reply(protocol.LoginFail)
		return
	}

	sess, err := rt.srv.sessions.Login(username, rt.conn)
	if err != nil {
		// An active session holds the name; never displace it.
		rt.srv.metrics.AuthFailures.WithLabelValues("already_logged_in").Inc()
		rt.reply(protocol.AlreadyLoggedIn)
		return
	}
	rt.sess = sess
	rt.srv.metrics.AuthSuccess.Inc()
	slog.Info("client authenticated", "user", username, "remote", sess.RemoteAddr())

	rt.reply(protocol.LoginSuccess)
	// Fresh clients need the group list to render; peers learn of the join.
	rt.reply(protocol.UpdateGroups(rt.srv.groups.Names()))
	rt.srv.broadcast(protocol.JoinNotice(username), username)
}

func (rt *Router) handleSend(send *protocol.SendFrame) {
	if rt.sess == nil {
		rt.reply(protocol.NotAllowed)
		return
	}
	body := protocol.Sanitize(send.Body)
	if strings.TrimSpace(body) == "" {
		return // nothing to deliver, silently drop
	}
	sender := rt.sess.Username
	rt.srv.metrics.MessagesRouted.WithLabelValues(send.Mode.String()).Inc()

	switch send.Mode {
	case protocol.ModeGlobal:
		rt.srv.broadcast(protocol.GlobalMessage(sender, body), "")

	case protocol.ModeDM:
		// Best-effort: an offline target means the send is dropped with no
		// reply, not an error.
		if target, ok := rt.srv.sessions.Lookup(send.Target); ok {
			rt.srv.deliver(target, protocol.DirectMessage(sender, body))
		}

	case protocol.ModeGroup:
		if send.Target == model.GlobalGroup {
			rt.srv.broadcast(protocol.GlobalMessage(sender, body), "")
			return
		}
		members, ok := rt.srv.groups.Members(send.Target)
		if !ok {
			rt.reply(protocol.GroupNotFound)
			return
		}
		// Member snapshot taken above under the directory lock; session
		// resolution and writes happen outside it. Members without a live
		// session are skipped.
		line := protocol.GroupMessage(sender, send.Target, body)
		for _, member := range members {
			if sess, ok := rt.srv.sessions.Lookup(member); ok {
				rt.srv.deliver(sess, line)
			}
		}
	}
}

func (rt *Router) handleCreateGroup(group *protocol.GroupFrame) {
	if rt.sess == nil {
		rt.reply(protocol.NotAllowed)
		return
	}
	name := strings.TrimSpace(group.Name)
	if err := rt.srv.groups.Create(name, rt.sess.Username); err != nil {
		// The wire protocol has a single failure reply for create, so
		// invalid names answer GROUP_EXISTS as well.
		slog.Debug("group create rejected", "name", name, "user", rt.sess.Username, "err", err)
		rt.reply(protocol.GroupExists)
		return
	}
	rt.srv.metrics.GroupsCreated.Inc()
	slog.Info("group created", "name", name, "by", rt.sess.Username)

	rt.reply(protocol.GroupCreated(name))
	rt.srv.broadcast(protocol.UpdateGroups(rt.srv.groups.Names()), "")
}

func (rt *Router) handleJoinGroup(group *protocol.GroupFrame) {
	if rt.sess == nil {
		rt.reply(protocol.NotAllowed)
		return
	}
	name := strings.TrimSpace(group.Name)
	if name == model.GlobalGroup {
		// Every session is implicitly a Global member already.
		rt.reply(protocol.JoinedGroup(name))
		return
	}
	if err := rt.srv.groups.Join(name, rt.sess.Username); err != nil {
		rt.reply(protocol.GroupNotFound)
		return
	}
	slog.Debug("group joined", "name", name, "user", rt.sess.Username)
	rt.reply(protocol.JoinedGroup(name))
}

func (rt *Router) handleUserList() {
	if rt.sess == nil {
		rt.reply(protocol.NotAllowed)
		return
	}
	rt.reply(protocol.UserList(rt.srv.sessions.Usernames()))
}

// broadcast delivers a line to every live session except exclude (empty means
// everyone). The session snapshot is taken under the registry lock; the
// socket writes happen outside it, so one slow recipient cannot stall the
// sender or the rest.
func (s *Server) broadcast(line, exclude string) {
	for _, sess := range s.sessions.All() {
		if sess.Username == exclude {
			continue
		}
		s.deliver(sess, line)
	}
}

// deliver writes one line to one recipient. A failed write is treated as that
// recipient's disconnect: its connection is closed so its own worker runs the
// cleanup path. The error never propagates to the sender.
func (s *Server) deliver(sess *Session, line string) {
	if err := sess.Send(line); err != nil {
		s.metrics.DeliveryFailures.Inc()
		slog.Debug("delivery failed, closing recipient", "user", sess.Username, "err", err)
		sess.Close()
		return
	}
	s.metrics.DeliveriesTotal.Inc()
}

func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, net.ErrClosed) ||
		strings.Contains(err.Error(), "use of closed network connection")
}
