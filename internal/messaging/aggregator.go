// Package messaging derives conversation views from the flat message log
// and orchestrates open-thread sessions.
package messaging

import (
	"context"
	"sort"

	"crewdesk/internal/database"
	"crewdesk/internal/models"

	"github.com/google/uuid"
)

// BuildConversations derives one conversation per distinct partner from
// selfID's slice of the message log: last message, unread count, ordered
// newest-activity first. The result is a snapshot of the live store;
// callers re-invoke after every mutation or realtime event.
//
// Two messages sharing a timestamp are ordered by id, so the derived
// last message is stable across rebuilds.
func BuildConversations(ctx context.Context, store database.MessageStore, selfID uuid.UUID) ([]*models.Conversation, error) {
	// Newest first, so the head of each partner bucket is the last message.
	msgs, err := store.ListMessagesInvolving(ctx, selfID)
	if err != nil {
		return nil, err
	}

	byPartner := make(map[uuid.UUID][]*models.Message)
	partnerIDs := []uuid.UUID{}
	for _, m := range msgs {
		partner := m.PartnerOf(selfID)
		if _, seen := byPartner[partner]; !seen {
			partnerIDs = append(partnerIDs, partner)
		}
		byPartner[partner] = append(byPartner[partner], m)
	}

	conversations := []*models.Conversation{}
	if len(partnerIDs) == 0 {
		return conversations, nil
	}

	partners, err := store.GetUsersByIDs(ctx, partnerIDs)
	if err != nil {
		return nil, err
	}

	for _, partner := range partners {
		thread := byPartner[partner.ID]

		var lastMessage *models.Message
		unread := 0
		for _, m := range thread {
			if lastMessage == nil {
				lastMessage = m
			}
			if m.RecipientID == selfID && !m.Read {
				unread++
			}
		}

		conversations = append(conversations, &models.Conversation{
			Partner:     *partner,
			LastMessage: lastMessage,
			UnreadCount: unread,
		})
	}

	sort.SliceStable(conversations, func(i, j int) bool {
		a, b := conversations[i].LastMessage, conversations[j].LastMessage
		switch {
		case a == nil && b == nil:
			return conversations[i].Partner.FullName < conversations[j].Partner.FullName
		case a == nil:
			// No activity sorts last.
			return false
		case b == nil:
			return true
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.After(b.CreatedAt)
		default:
			return a.ID.String() > b.ID.String()
		}
	})

	return conversations, nil
}

// UnreadTotal sums the unread counts of a conversation list.
func UnreadTotal(conversations []*models.Conversation) int {
	total := 0
	for _, c := range conversations {
		total += c.UnreadCount
	}
	return total
}
