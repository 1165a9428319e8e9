package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/inkwelldiary/inkwell/internal/analysis"
	"github.com/inkwelldiary/inkwell/internal/jobs/enrich"
	"github.com/inkwelldiary/inkwell/internal/logger"
	"github.com/inkwelldiary/inkwell/internal/repos"
	"github.com/inkwelldiary/inkwell/internal/services"
)

type Services struct {
	Diary   services.DiaryService
	Profile services.ProfileService
	MoodArt services.MoodArtService
	Events  *services.EventHub
}

func wireServices(
	db *gorm.DB,
	log *logger.Logger,
	cfg Config,
	reposet Repos,
	feed *repos.ChangeFeed,
	llm services.Generator,
) (Services, *enrich.Worker, error) {
	log.Info("Wiring services...")

	parser := analysis.NewParser(log)
	events := services.NewEventHub()

	profile := services.NewProfileService(log, llm, parser, reposet.Profile)

	worker := enrich.NewWorker(log, profile.EnrichFromEntry, cfg.Worker.QueueSize)

	diary := services.NewDiaryService(
		log, db, llm, parser,
		reposet.Entries, reposet.Tags, reposet.Analysis,
		feed, events, worker,
	)

	moodArt, err := services.NewMoodArtService(log, cfg.DataDir)
	if err != nil {
		return Services{}, nil, fmt.Errorf("init mood art service: %w", err)
	}

	return Services{
		Diary:   diary,
		Profile: profile,
		MoodArt: moodArt,
		Events:  events,
	}, worker, nil
}
