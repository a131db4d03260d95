package person

import (
	"context"
	"strings"

	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/identity"
	"github.com/omniaagent/crmsync/internal/logger"
	"github.com/omniaagent/crmsync/internal/payload"
	"github.com/omniaagent/crmsync/internal/source"
)

// Creator creates a person and returns its ID.
type Creator interface {
	CreatePerson(ctx context.Context, in payload.PersonInput) (string, error)
}

// Synthesizer creates missing people from source records.
type Synthesizer struct {
	creator Creator
	ids     *identity.Set
	log     logger.Logger
}

// NewSynthesizer returns a synthesizer that records new IDs in ids.People.
func NewSynthesizer(creator Creator, ids *identity.Set, log logger.Logger) *Synthesizer {
	if log == nil {
		log = GetLogger()
	}
	return &Synthesizer{creator: creator, ids: ids, log: log}
}

// Synthesize creates the person for rec under the normalized phone. A
// duplicate conflict, usually an email already owned by another person, is
// retried once without the email.
func (s *Synthesizer) Synthesize(ctx context.Context, rec source.Record, phone string) (string, error) {
	var agentID string
	if agent := rec.Trimmed("member_name"); agent != "" {
		agentID, _ = s.ids.Agents.Resolve(ctx, agent)
	}

	in := BuildInput(rec, phone, agentID)
	id, err := s.creator.CreatePerson(ctx, in)
	if err != nil && isDuplicate(err) {
		s.log.Info("duplicate person, retrying without email", logger.String("phone", phone))
		id, err = s.creator.CreatePerson(ctx, in.WithoutEmail())
	}
	if err != nil {
		return "", errors.New(err).
			Component("person").
			Category(errors.CategoryIdentity).
			Context("operation", "create_person").
			Build()
	}

	s.ids.People.Store(phone, id)
	s.log.Info("created person",
		logger.String("id", id),
		logger.String("name", in.Name.FirstName+" "+in.Name.LastName))
	return id, nil
}

func isDuplicate(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "duplicate")
}
