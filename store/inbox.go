package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"inkpress/common"
	"inkpress/models"
)

// Subscribe adds email to the newsletter or reactivates an earlier
// subscription. created reports a brand-new row.
func (s *Store) Subscribe(ctx context.Context, email string) (sub *models.NewsletterSubscriber, created bool, err error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, false, common.Validation("Email is required")
	}

	var row models.NewsletterSubscriber
	err = s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("email = ?", email).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = models.NewsletterSubscriber{Email: email, IsActive: true}
			created = true
			return tx.Create(&row).Error
		}
		if err != nil {
			return err
		}
		if !row.IsActive {
			row.IsActive = true
			return tx.Model(&row).Update("is_active", true).Error
		}
		return nil
	})
	if err != nil {
		return nil, false, translate(err, "Subscriber")
	}
	return &row, created, nil
}

// Unsubscribe deactivates email. An unknown address is NotFound.
func (s *Store) Unsubscribe(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return common.Validation("Email is required")
	}
	res := s.conn(ctx).Model(&models.NewsletterSubscriber{}).
		Where("email = ?", email).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// mysql counts changed rows only, so an already inactive row looks missing.
		var n int64
		if err := s.conn(ctx).Model(&models.NewsletterSubscriber{}).Where("email = ?", email).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return common.NotFound("Email")
		}
	}
	return nil
}

func (s *Store) ListSubscribers(ctx context.Context, p common.ListParams) (common.Page[models.NewsletterSubscriber], error) {
	q := reusable(like(s.conn(ctx).Model(&models.NewsletterSubscriber{}), p.Search, "email"))

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return common.Page[models.NewsletterSubscriber]{}, err
	}
	var subs []models.NewsletterSubscriber
	err := paginate(q, p).
		Order(common.OrderClause(p.Ordering, []string{"created_at", "email"}, "created_at DESC")).
		Find(&subs).Error
	if err != nil {
		return common.Page[models.NewsletterSubscriber]{}, err
	}
	return common.NewPage(p, count, subs), nil
}

// ActiveSubscriberCount is used by the dashboard.
func (s *Store) ActiveSubscriberCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&models.NewsletterSubscriber{}).Where("is_active = ?", true).Count(&n).Error
	return n, err
}

// ContactInput is a visitor's message from the contact form.
type ContactInput struct {
	Name    string `json:"name" binding:"required,max=100"`
	Email   string `json:"email" binding:"required,email"`
	Subject string `json:"subject" binding:"required,max=200"`
	Message string `json:"message" binding:"required"`
}

func (s *Store) CreateContact(ctx context.Context, in ContactInput) (*models.Contact, error) {
	c := models.Contact{
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.TrimSpace(in.Email),
		Subject: strings.TrimSpace(in.Subject),
		Message: in.Message,
	}
	if c.Name == "" || c.Email == "" || c.Subject == "" || strings.TrimSpace(c.Message) == "" {
		return nil, common.Validation("name, email, subject and message are required")
	}
	if err := s.conn(ctx).Create(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListContacts(ctx context.Context, p common.ListParams) (common.Page[models.Contact], error) {
	q := reusable(like(s.conn(ctx).Model(&models.Contact{}), p.Search, "name", "email", "subject"))

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return common.Page[models.Contact]{}, err
	}
	var contacts []models.Contact
	err := paginate(q, p).Order("created_at DESC").Find(&contacts).Error
	if err != nil {
		return common.Page[models.Contact]{}, err
	}
	return common.NewPage(p, count, contacts), nil
}

func (s *Store) GetContact(ctx context.Context, id uint) (*models.Contact, error) {
	var c models.Contact
	if err := s.conn(ctx).First(&c, id).Error; err != nil {
		return nil, translate(err, "Contact")
	}
	return &c, nil
}

func (s *Store) DeleteContact(ctx context.Context, id uint) error {
	res := s.conn(ctx).Delete(&models.Contact{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.NotFound("Contact")
	}
	return nil
}
