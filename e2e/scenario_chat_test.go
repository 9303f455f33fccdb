package e2e

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/infrastructure/grpc/client"
	"chat-relay/infrastructure/ws"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

const password = "E2e-Passw0rd!relay"

type testChatSuite struct {
	BaseGrpcSuite
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, &testChatSuite{})
}

type account struct {
	token  string
	userID domain.UserID
}

func (s *testChatSuite) register(name string) account {
	var acc account
	s.WithRelay("Register "+name, func(ctx context.Context, relay *client.RelayClient) {
		email := fmt.Sprintf("%s-%s@e2e.test", name, uuid.NewString()[:8])
		s.Require().NoError(relay.Register(ctx, email, password, name))
		acc = account{token: relay.Token(), userID: relay.UserID()}
	})
	return acc
}

func (s *testChatSuite) await(c *ws.Client, frameType string) ws.Frame {
	timeout := time.After(5 * time.Second)
	for {
		select {
		case frame, ok := <-c.Frames():
			s.Require().True(ok, "connection closed: %v", c.Err())
			if frame.Type == frameType {
				return frame
			}
		case <-timeout:
			s.FailNow("timeout waiting for " + frameType)
		}
	}
}

func (s *testChatSuite) TestPrivateConversation() {
	alice := s.register("alice")
	bob := s.register("bob")
	var roomID domain.RoomID

	s.Run("Step 1: Alice opens the private room twice and gets the same one", func() {
		s.WithRelay("Open private room", func(ctx context.Context, relay *client.RelayClient) {
			relay.UseToken(alice.token, alice.userID)
			first, err := relay.OpenPrivateRoom(ctx, bob.userID)
			s.Require().NoError(err)
			again, err := relay.OpenPrivateRoom(ctx, bob.userID)
			s.Require().NoError(err)
			s.Equal(first.ID, again.ID)
			roomID = domain.RoomID(first.ID)
		})
	})

	s.Run("Step 2: Live exchange", func() {
		aliceLive, err := ws.Dial(s.Config.WsURL, alice.token)
		s.Require().NoError(err)
		defer aliceLive.Close()
		bobLive, err := ws.Dial(s.Config.WsURL, bob.token)
		s.Require().NoError(err)
		defer bobLive.Close()

		for _, c := range []*ws.Client{aliceLive, bobLive} {
			_, err := c.JoinRooms()
			s.Require().NoError(err)
			s.await(c, ws.TypeAck)
		}

		_, err = aliceLive.Post(roomID, "hi bob")
		s.Require().NoError(err)
		e, err := ws.ToEvent(s.await(bobLive, ws.TypeNewMessage))
		s.Require().NoError(err)
		delivered, ok := e.(event.MessageDelivered)
		s.Require().True(ok)
		s.Equal("hi bob", delivered.Message.Content)
		s.Equal(alice.userID, delivered.Message.SenderID)
		s.Positive(delivered.Message.Sequence)
	})

	s.Run("Step 3: History is visible to both participants", func() {
		s.WithRelay("Get history", func(ctx context.Context, relay *client.RelayClient) {
			relay.UseToken(bob.token, bob.userID)
			messages, err := relay.GetHistory(ctx, roomID, 10, 0)
			s.Require().NoError(err)
			s.Require().NotEmpty(messages)
			last := messages[len(messages)-1]
			s.Equal("hi bob", last.Content)
			s.Equal(alice.userID, last.SenderID)
		})
	})
}
