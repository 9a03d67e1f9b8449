package protocol

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		line    string
		want    *Frame
		wantErr bool
	}{
		"register": {
			line: "REGISTER:alice:pw1",
			want: &Frame{Register: &AuthFrame{Username: "alice", Password: "pw1"}},
		},
		"login": {
			line: "LOGIN:alice:pw1",
			want: &Frame{Login: &AuthFrame{Username: "alice", Password: "pw1"}},
		},
		"register_missing_password": {
			line:    "REGISTER:alice",
			wantErr: true,
		},
		"register_colon_in_password": {
			line:    "REGISTER:alice:pw:1",
			wantErr: true,
		},
		"global_message": {
			line: "MSG:Global:hello world",
			want: &Frame{Send: &SendFrame{Mode: ModeGlobal, Body: "hello world"}},
		},
		"global_message_with_colons": {
			line: "MSG:Global:see http://example.com:8080",
			want: &Frame{Send: &SendFrame{Mode: ModeGlobal, Body: "see http://example.com:8080"}},
		},
		"dm": {
			line: "MSG:DM:bob:hey",
			want: &Frame{Send: &SendFrame{Mode: ModeDM, Target: "bob", Body: "hey"}},
		},
		"dm_body_with_colons": {
			line: "MSG:DM:bob:meet at 10:30",
			want: &Frame{Send: &SendFrame{Mode: ModeDM, Target: "bob", Body: "meet at 10:30"}},
		},
		"group_message": {
			line: "MSG:GROUP:devs:standup time",
			want: &Frame{Send: &SendFrame{Mode: ModeGroup, Target: "devs", Body: "standup time"}},
		},
		"dm_missing_body": {
			line:    "MSG:DM:bob",
			wantErr: true,
		},
		"unknown_mode": {
			line:    "MSG:WHISPER:bob:hey",
			wantErr: true,
		},
		"create_group": {
			line: "CREATE_GROUP:devs",
			want: &Frame{CreateGroup: &GroupFrame{Name: "devs"}},
		},
		"create_group_extra_field": {
			line:    "CREATE_GROUP:devs:extra",
			wantErr: true,
		},
		"join_group": {
			line: "JOIN_GROUP:devs",
			want: &Frame{JoinGroup: &GroupFrame{Name: "devs"}},
		},
		"userlist": {
			line: "USERLIST",
			want: &Frame{UserList: &UserListFrame{}},
		},
		"userlist_with_field": {
			line:    "USERLIST:extra",
			wantErr: true,
		},
		"unknown_command": {
			line:    "KICK:bob",
			wantErr: true,
		},
		"empty_line": {
			line:    "",
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := Parse(tc.line)
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedFrame)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestReaderSplitsCoalescedFrames(t *testing.T) {
	t.Parallel()

	// Two frames arriving in one read must come out as two frames.
	r := NewReader(strings.NewReader("LOGIN:alice:pw1\nMSG:Global:hi\n"))

	first, err := r.ReadFrame()
	require.NoError(t, err)
	require.NotNil(t, first.Login)
	assert.Equal(t, "alice", first.Login.Username)

	second, err := r.ReadFrame()
	require.NoError(t, err)
	require.NotNil(t, second.Send)
	assert.Equal(t, "hi", second.Send.Body)

	_, err = r.ReadFrame()
	assert.Equal(t, io.EOF, err)
}

func TestReaderAssemblesPartialFrames(t *testing.T) {
	t.Parallel()

	// A frame split across several writes must come out whole.
	pr, pw := io.Pipe()
	go func() {
		for _, chunk := range []string{"MSG:Glo", "bal:hel", "lo\n"} {
			_, _ = pw.Write([]byte(chunk))
		}
		_ = pw.Close()
	}()

	r := NewReader(pr)
	frame, err := r.ReadFrame()
	require.NoError(t, err)
	require.NotNil(t, frame.Send)
	assert.Equal(t, ModeGlobal, frame.Send.Mode)
	assert.Equal(t, "hello", frame.Send.Body)
}

func TestReaderCRLF(t *testing.T) {
	t.Parallel()

	r := NewReader(strings.NewReader("USERLIST\r\n"))
	frame, err := r.ReadFrame()
	require.NoError(t, err)
	assert.NotNil(t, frame.UserList)
}

func TestReaderRejectsOversizeFrame(t *testing.T) {
	t.Parallel()

	line := "MSG:Global:" + strings.Repeat("x", MaxFrameSize) + "\n"
	r := NewReader(strings.NewReader(line))
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestWriteFrame(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	require.NoError(t, WriteFrame(&sb, "LOGIN_SUCCESS"))
	assert.Equal(t, "LOGIN_SUCCESS\n", sb.String())

	err := WriteFrame(&sb, strings.Repeat("x", MaxFrameSize))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hello world", Sanitize("hello\nworld"))
	assert.Equal(t, "hello  world", Sanitize("hello\r\nworld"))

	// ANSI escape and null bytes are stripped outright.
	assert.Equal(t, "[31mred", Sanitize("\x1b[31mred\x00"))
	assert.Equal(t, "plain", Sanitize("plain"))
}

func TestWireBuilders(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "GROUP_CREATED:devs", GroupCreated("devs"))
	assert.Equal(t, "JOINED_GROUP:devs", JoinedGroup("devs"))
	assert.Equal(t, "USERLIST:alice,bob", UserList([]string{"alice", "bob"}))
	assert.Equal(t, "UPDATE_GROUPS:devs:ops", UpdateGroups([]string{"devs", "ops"}))
	assert.Equal(t, "alice: hi", GlobalMessage("alice", "hi"))
	assert.Equal(t, "[DM] alice: hi", DirectMessage("alice", "hi"))
	assert.Equal(t, "alice (devs): hi", GroupMessage("alice", "devs", "hi"))
	assert.Equal(t, "Server: alice has joined the chat", JoinNotice("alice"))
	assert.Equal(t, "Server: alice has left the chat", LeaveNotice("alice"))
}

func TestModeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "global", ModeGlobal.String())
	assert.Equal(t, "dm", ModeDM.String())
	assert.Equal(t, "group", ModeGroup.String())
}

func TestParseErrorIsTerminalKind(t *testing.T) {
	t.Parallel()

	_, err := Parse("garbage")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedFrame))
}
