package app

import (
	"gorm.io/gorm"

	"github.com/inkwelldiary/inkwell/internal/logger"
	"github.com/inkwelldiary/inkwell/internal/repos"
)

type Repos struct {
	Entries  repos.DiaryEntryRepo
	Tags     repos.TagRepo
	Analysis repos.AnalysisRepo
	Profile  repos.UserProfileRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger, feed *repos.ChangeFeed) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Entries:  repos.NewDiaryEntryRepo(db, log, feed),
		Tags:     repos.NewTagRepo(db, log, feed),
		Analysis: repos.NewAnalysisRepo(db, log, feed),
		Profile:  repos.NewUserProfileRepo(db, log, feed),
	}
}
