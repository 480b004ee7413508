package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"inkpress/common"
	"inkpress/models"
)

// SettingsPatch is a partial update of the site settings.
type SettingsPatch struct {
	SiteTitle              *string           `json:"site_title"`
	SiteDescription        *string           `json:"site_description"`
	Favicon                *string           `json:"favicon"`
	EnableComments         *bool             `json:"enable_comments"`
	EnableGuestComments    *bool             `json:"enable_guest_comments"`
	RequireCommentApproval *bool             `json:"require_comment_approval"`
	PostsPerPage           *uint             `json:"posts_per_page"`
	Features               datatypes.JSONMap `json:"features"`
}

// GetOrCreateSettings returns the singleton row, creating it with
// defaults on first use.
func (s *Store) GetOrCreateSettings(ctx context.Context) (*models.SiteSettings, error) {
	var st models.SiteSettings
	err := s.conn(ctx).First(&st, models.SettingsID).Error
	if err == nil {
		return &st, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	st = models.DefaultSettings()
	// Two first requests may race; whoever loses reads the winner's row.
	if err := s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&st).Error; err != nil {
		return nil, err
	}
	if err := s.conn(ctx).First(&st, models.SettingsID).Error; err != nil {
		return nil, err
	}
	return &st, nil
}

// CreateSettings inserts the singleton. It fails once a row exists.
func (s *Store) CreateSettings(ctx context.Context, st models.SiteSettings) (*models.SiteSettings, error) {
	st.ID = models.SettingsID
	if st.Features == nil {
		st.Features = datatypes.JSONMap{}
	}
	err := s.conn(ctx).Create(&st).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, common.Conflict("Site settings already exist")
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) UpdateSettings(ctx context.Context, in SettingsPatch) (*models.SiteSettings, error) {
	st, err := s.GetOrCreateSettings(ctx)
	if err != nil {
		return nil, err
	}

	if in.SiteTitle != nil {
		title := strings.TrimSpace(*in.SiteTitle)
		if title == "" {
			return nil, common.Validation("site_title may not be blank")
		}
		st.SiteTitle = title
	}
	if in.SiteDescription != nil {
		st.SiteDescription = *in.SiteDescription
	}
	if in.Favicon != nil {
		st.Favicon = *in.Favicon
	}
	if in.EnableComments != nil {
		st.EnableComments = *in.EnableComments
	}
	if in.EnableGuestComments != nil {
		st.EnableGuestComments = *in.EnableGuestComments
	}
	if in.RequireCommentApproval != nil {
		st.RequireCommentApproval = *in.RequireCommentApproval
	}
	if in.PostsPerPage != nil {
		if *in.PostsPerPage == 0 || *in.PostsPerPage > common.MaxPageSize {
			return nil, common.Validation("posts_per_page must be between 1 and %d", common.MaxPageSize)
		}
		st.PostsPerPage = *in.PostsPerPage
	}
	if in.Features != nil {
		if st.Features == nil {
			st.Features = datatypes.JSONMap{}
		}
		for k, v := range in.Features {
			if v == nil {
				delete(st.Features, k)
				continue
			}
			st.Features[k] = v
		}
	}

	if err := s.conn(ctx).Save(st).Error; err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) SetLogo(ctx context.Context, ref string) (*models.SiteSettings, error) {
	st, err := s.GetOrCreateSettings(ctx)
	if err != nil {
		return nil, err
	}
	st.Logo = ref
	if err := s.conn(ctx).Model(st).Update("logo", ref).Error; err != nil {
		return nil, err
	}
	return st, nil
}

// DeleteSettings always fails: the singleton cannot be removed.
func (s *Store) DeleteSettings(context.Context) error {
	return common.Validation("Site settings cannot be deleted")
}
