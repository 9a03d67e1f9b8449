// Package protocol defines the GoChat wire format: one UTF-8 text line per
// frame, terminated by '\n', with colon-separated fields. Only the final
// message-body field may contain the ':' delimiter; all other field values are
// validated to exclude it. Inbound lines are decoded once at the boundary into
// a tagged Frame variant and dispatched from there, so a body containing
// colons can never desynchronize field parsing.
package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// MaxFrameSize is the maximum accepted frame length in bytes (64KB).
const MaxFrameSize = 65536

// Commands sent by clients.
const (
	CmdRegister    = "REGISTER"
	CmdLogin       = "LOGIN"
	CmdMsg         = "MSG"
	CmdCreateGroup = "CREATE_GROUP"
	CmdJoinGroup   = "JOIN_GROUP"
	CmdUserList    = "USERLIST"
)

// Replies sent by the server. Any line a client receives that does not start
// with one of these prefixes is a chat message for display.
const (
	RegisterSuccess = "REGISTER_SUCCESS"
	RegisterFail    = "REGISTER_FAIL"
	LoginSuccess    = "LOGIN_SUCCESS"
	LoginFail       = "LOGIN_FAIL"
	AlreadyLoggedIn = "ALREADY_LOGGED_IN"
	GroupExists     = "GROUP_EXISTS"
	GroupNotFound   = "GROUP_NOT_FOUND"
	NotAllowed      = "NOT_ALLOWED"
)

var ErrMalformedFrame = errors.New("protocol: malformed frame")
var ErrFrameTooLarge = fmt.Errorf("protocol: frame exceeds %d bytes", MaxFrameSize)

// Mode selects how a chat message is delivered.
type Mode int

const (
	ModeGlobal Mode = iota // broadcast to every live session
	ModeDM                 // deliver to one peer, best-effort
	ModeGroup              // deliver to every live member of a named group
)

func (m Mode) String() string {
	switch m {
	case ModeGlobal:
		return "global"
	case ModeDM:
		return "dm"
	case ModeGroup:
		return "group"
	default:
		return "unknown"
	}
}

// Frame is a decoded client request. Exactly one field is set.
type Frame struct {
	Register    *AuthFrame
	Login       *AuthFrame
	Send        *SendFrame
	CreateGroup *GroupFrame
	JoinGroup   *GroupFrame
	UserList    *UserListFrame
}

// AuthFrame carries registration or login credentials.
type AuthFrame struct {
	Username string
	Password string
}

// SendFrame carries a chat message. Target is the peer username for ModeDM,
// the group name for ModeGroup, and empty for ModeGlobal.
type SendFrame struct {
	Mode   Mode
	Target string
	Body   string
}

// GroupFrame names a group to create or join.
type GroupFrame struct {
	Name string
}

// UserListFrame requests the list of logged-in usernames.
type UserListFrame struct{}

// Parse decodes one frame line. The trailing delimiter must already be
// stripped. Unknown commands, missing fields, and delimiter characters in
// non-body fields all yield ErrMalformedFrame.
func Parse(line string) (*Frame, error) {
	cmd, rest, _ := strings.Cut(line, ":")
	switch cmd {
	case CmdRegister, CmdLogin:
		user, pass, ok := strings.Cut(rest, ":")
		if !ok || strings.Contains(pass, ":") {
			return nil, fmt.Errorf("%w: %s needs user and password fields", ErrMalformedFrame, cmd)
		}
		auth := &AuthFrame{Username: user, Password: pass}
		if cmd == CmdRegister {
			return &Frame{Register: auth}, nil
		}
		return &Frame{Login: auth}, nil

	case CmdMsg:
		return parseSend(rest)

	case CmdCreateGroup, CmdJoinGroup:
		if rest == "" || strings.Contains(rest, ":") {
			return nil, fmt.Errorf("%w: %s needs a single name field", ErrMalformedFrame, cmd)
		}
		group := &GroupFrame{Name: rest}
		if cmd == CmdCreateGroup {
			return &Frame{CreateGroup: group}, nil
		}
		return &Frame{JoinGroup: group}, nil

	case CmdUserList:
		if rest != "" {
			return nil, fmt.Errorf("%w: %s takes no fields", ErrMalformedFrame, CmdUserList)
		}
		return &Frame{UserList: &UserListFrame{}}, nil

	default:
		return nil, fmt.Errorf("%w: unknown command %q", ErrMalformedFrame, cmd)
	}
}

func parseSend(rest string) (*Frame, error) {
	mode, rest, ok := strings.Cut(rest, ":")
	if !ok {
		return nil, fmt.Errorf("%w: MSG needs a delivery mode", ErrMalformedFrame)
	}
	switch mode {
	case "Global":
		return &Frame{Send: &SendFrame{Mode: ModeGlobal, Body: rest}}, nil
	case "DM", "GROUP":
		target, body, ok := strings.Cut(rest, ":")
		if !ok || target == "" {
			return nil, fmt.Errorf("%w: MSG:%s needs target and body fields", ErrMalformedFrame, mode)
		}
		m := ModeDM
		if mode == "GROUP" {
			m = ModeGroup
		}
		return &Frame{Send: &SendFrame{Mode: m, Target: target, Body: body}}, nil
	default:
		return nil, fmt.Errorf("%w: unknown delivery mode %q", ErrMalformedFrame, mode)
	}
}

// Reader assembles newline-delimited frames from a stream. It tolerates
// partial reads (a frame split across several TCP segments) and coalesced
// reads (several frames arriving in one segment), unlike the fixed-chunk
// recv the original clients were written against.
type Reader struct {
	s *bufio.Scanner
}

// NewReader wraps r in a frame reader with the MaxFrameSize bound applied.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 4096), MaxFrameSize)
	return &Reader{s: s}
}

// ReadLine returns the next raw frame line without its delimiter.
// Returns io.EOF on clean peer close.
func (r *Reader) ReadLine() (string, error) {
	if !r.s.Scan() {
		if err := r.s.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				return "", ErrFrameTooLarge
			}
			return "", err
		}
		return "", io.EOF
	}
	// Tolerate CRLF from line-mode tools like telnet.
	return strings.TrimSuffix(r.s.Text(), "\r"), nil
}

// ReadFrame reads and decodes the next client frame.
func (r *Reader) ReadFrame() (*Frame, error) {
	line, err := r.ReadLine()
	if err != nil {
		return nil, err
	}
	return Parse(line)
}

// WriteFrame writes one frame line with its delimiter in a single Write call,
// so concurrent writers interleave at frame granularity at worst.
func WriteFrame(w io.Writer, line string) error {
	if len(line)+1 > MaxFrameSize {
		return ErrFrameTooLarge
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("protocol: write frame: %w", err)
	}
	return nil
}

// Sanitize strips control characters from user-supplied text to prevent UI
// spoofing and terminal escape injection. CR and LF collapse to spaces since
// they would otherwise terminate the frame early.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
