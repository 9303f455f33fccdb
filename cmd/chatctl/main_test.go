package main

import (
	"bytes"
	"chat-relay/infrastructure/grpc/api"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_Without_Command_Prints_Usage(t *testing.T) {
	var out bytes.Buffer

	err := run(nil, &out)

	require.NoError(t, err)
	require.Contains(t, out.String(), "usage: chatctl")
}

func TestPrintStats_Sorts_Counters(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer

	printStats(&out, &api.StatsResponse{
		Sessions: 2,
		Counters: map[string]uint64{"slow_consumer": 1, "censored": 4, "message_sent": 9},
	})

	text := out.String()
	req.Contains(text, "sessions")
	censored := strings.Index(text, "censored")
	sent := strings.Index(text, "message_sent")
	slow := strings.Index(text, "slow_consumer")
	req.True(censored < sent && sent < slow, text)
}

func TestPrintRooms(t *testing.T) {
	var out bytes.Buffer

	printRooms(&out, api.Room{ID: "r-1", Kind: "group", Name: "team", Participants: []string{"alice", "bob"}, LastSequence: 12})

	require.Contains(t, out.String(), "alice,bob")
	require.Contains(t, out.String(), "12")
}

func TestPrintUsers_Shows_Online_Status(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer

	// Given one user online and one offline
	users := []api.User{
		{ID: "u-1", DisplayName: "Ada", Online: true},
		{ID: "u-2", DisplayName: "Grace"},
	}

	// When printing the directory
	printUsers(&out, users...)

	// Then each row carries its status
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	req.Len(lines, 3)
	req.Contains(lines[1], "Ada")
	req.Contains(lines[1], "online")
	req.Contains(lines[2], "Grace")
	req.Contains(lines[2], "offline")
}
