package service

import (
	"codehub_backend/internal/model"
	"codehub_backend/internal/repository"
	"codehub_backend/internal/util"
	"codehub_backend/pkg/monitoring"
	"context"
	"errors"

	"gorm.io/gorm"
)

type UserService struct {
	UserRepo *repository.UserRepository
	DB       *gorm.DB
}

func NewUserService(userRepo *repository.UserRepository, db *gorm.DB) *UserService {
	return &UserService{UserRepo: userRepo, DB: db}
}

// ProfileView 个人资料与积分等级
type ProfileView struct {
	ID     uint           `json:"id"`
	Name   string         `json:"name"`
	Role   model.UserRole `json:"role"`
	Bio    string         `json:"bio"`
	Points int            `json:"points"`
	Level  int            `json:"level"`
}

func (s *UserService) GetProfile(ctx context.Context, userID uint) (*ProfileView, error) {
	user, err := s.UserRepo.WithTx(s.DB.WithContext(ctx)).FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("user %d", userID)
		}
		return nil, err
	}
	return &ProfileView{
		ID:     user.ID,
		Name:   user.Name,
		Role:   user.Role,
		Bio:    user.Bio,
		Points: user.Points,
		Level:  user.Level,
	}, nil
}

func (s *UserService) Leaderboard(ctx context.Context, limit int) ([]ProfileView, error) {
	if limit <= 0 || limit > util.MaxLimit {
		limit = util.DefaultLimit
	}
	users, err := s.UserRepo.WithTx(s.DB.WithContext(ctx)).FindTopByPoints(limit)
	if err != nil {
		return nil, err
	}
	out := make([]ProfileView, 0, len(users))
	for _, u := range users {
		out = append(out, ProfileView{ID: u.ID, Name: u.Name, Role: u.Role, Points: u.Points, Level: u.Level})
	}
	return out, nil
}

// AwardPoints 独立事务中加积分
func (s *UserService) AwardPoints(ctx context.Context, userID uint, points int) (*model.User, error) {
	var user *model.User
	awarded := 0
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := s.UserRepo.WithTx(tx).FindByIDForUpdate(userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.NotFoundf("user %d", userID)
			}
			return err
		}
		n, err := s.awardPointsTx(tx, u, points)
		if err != nil {
			return err
		}
		user, awarded = u, n
		return nil
	})
	if err != nil {
		return nil, err
	}
	recordPointsAwarded(awarded)
	return user, nil
}

// awardPointsTx 调用方需已持有用户行锁；指标由调用方在提交后记录
func (s *UserService) awardPointsTx(tx *gorm.DB, user *model.User, points int) (int, error) {
	if !user.AddPoints(points) {
		return 0, nil
	}
	if err := s.UserRepo.WithTx(tx).SavePoints(user); err != nil {
		return 0, err
	}
	return points, nil
}

func recordPointsAwarded(points int) {
	if points > 0 {
		monitoring.PointsAwardedCounter.Add(float64(points))
	}
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
