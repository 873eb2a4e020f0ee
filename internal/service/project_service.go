package service

import (
	"codehub_backend/internal/model"
	"codehub_backend/internal/repository"
	"codehub_backend/internal/util"
	"codehub_backend/pkg/logger"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ProjectService struct {
	Repo     *repository.ProjectRepository
	UserRepo *repository.UserRepository
	Notifier Notifier
	Hub      *RelayHub
	DB       *gorm.DB
}

func NewProjectService(repo *repository.ProjectRepository, userRepo *repository.UserRepository, notifier Notifier, hub *RelayHub, db *gorm.DB) *ProjectService {
	return &ProjectService{Repo: repo, UserRepo: userRepo, Notifier: notifier, Hub: hub, DB: db}
}

type CreateProjectInput struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	IsPublic    bool   `json:"isPublic"`
	RepoURL     string `json:"repoUrl"`
}

type TaskInput struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Priority    int        `json:"priority"`
	AssigneeID  *uint      `json:"assigneeId"`
	DueDate     *time.Time `json:"dueDate"`
	Labels      []string   `json:"labels"`
}

// TaskUpdate 只更新非空字段
type TaskUpdate struct {
	Title       *string           `json:"title"`
	Description *string           `json:"description"`
	Status      *model.TaskStatus `json:"status"`
	Priority    *int              `json:"priority"`
	AssigneeID  *uint             `json:"assigneeId"`
	DueDate     *time.Time        `json:"dueDate"`
	Labels      []string          `json:"labels"`
}

// MemberView 成员列表项，不含邮箱
type MemberView struct {
	UserID   uint              `json:"userId"`
	Name     string            `json:"name"`
	Role     model.ProjectRole `json:"role"`
	JoinedAt time.Time         `json:"joinedAt"`
}

func (s *ProjectService) findProject(ctx context.Context, projectID uint) (*model.Project, error) {
	project, err := s.Repo.WithTx(s.DB.WithContext(ctx)).FindByID(projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("project %d", projectID)
		}
		return nil, err
	}
	return project, nil
}

// membershipRole 所有者返回 owner，非成员返回空串
func (s *ProjectService) membershipRole(ctx context.Context, project *model.Project, userID uint) (model.ProjectRole, error) {
	if project.OwnerID == userID {
		return model.ProjectOwner, nil
	}
	m, err := s.Repo.WithTx(s.DB.WithContext(ctx)).FindMembership(project.ID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return m.Role, nil
}

// CanAccess 所有者、有效成员或公开项目可访问
func (s *ProjectService) CanAccess(ctx context.Context, userID, projectID uint) (bool, error) {
	project, err := s.findProject(ctx, projectID)
	if err != nil {
		return false, err
	}
	if project.IsPublic {
		return true, nil
	}
	role, err := s.membershipRole(ctx, project, userID)
	if err != nil {
		return false, err
	}
	return role != "", nil
}

func (s *ProjectService) requireAccess(ctx context.Context, userID, projectID uint) error {
	ok, err := s.CanAccess(ctx, userID, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return util.ErrPermissionDenied
	}
	return nil
}

// requireEditor 查看者不能修改项目内容
func (s *ProjectService) requireEditor(ctx context.Context, userID uint, project *model.Project) (model.ProjectRole, error) {
	role, err := s.membershipRole(ctx, project, userID)
	if err != nil {
		return "", err
	}
	if role == "" || role == model.ProjectViewer {
		return "", util.ErrPermissionDenied
	}
	return role, nil
}

func (s *ProjectService) CreateProject(ctx context.Context, ownerID uint, in CreateProjectInput) (*model.Project, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, util.NewValidationError("title", "title is required")
	}
	project := &model.Project{
		Title:       in.Title,
		Description: in.Description,
		OwnerID:     ownerID,
		Status:      model.ProjectPlanning,
		IsPublic:    in.IsPublic,
		RepoURL:     in.RepoURL,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.Repo.WithTx(tx)
		if err := repo.Create(project); err != nil {
			return err
		}
		return repo.AddMember(&model.ProjectMembership{
			ProjectID: project.ID,
			UserID:    ownerID,
			Role:      model.ProjectOwner,
			IsActive:  true,
			JoinedAt:  time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Info("Project created", zap.Uint("projectId", project.ID), zap.Uint("ownerId", ownerID))
	return project, nil
}

// AddMember 仅所有者和维护者可邀请
func (s *ProjectService) AddMember(ctx context.Context, actorID, projectID, userID uint, role model.ProjectRole) (*model.ProjectMembership, error) {
	project, err := s.findProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	actorRole, err := s.membershipRole(ctx, project, actorID)
	if err != nil {
		return nil, err
	}
	if actorRole != model.ProjectOwner && actorRole != model.ProjectMaintainer {
		return nil, util.ErrPermissionDenied
	}

	switch role {
	case "":
		role = model.ProjectMember
	case model.ProjectMaintainer, model.ProjectMember, model.ProjectViewer:
	default:
		return nil, util.NewValidationError("role", "unsupported role %q", role)
	}

	if _, err := s.UserRepo.WithTx(s.DB.WithContext(ctx)).FindByID(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("user %d", userID)
		}
		return nil, err
	}

	m := &model.ProjectMembership{
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		IsActive:  true,
		JoinedAt:  time.Now(),
	}
	if err := s.Repo.WithTx(s.DB.WithContext(ctx)).AddMember(m); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, util.NewValidationError("userId", "user %d is already a member", userID)
		}
		return nil, err
	}

	s.notify(ctx, NotifyRequest{
		RecipientID: userID,
		SenderID:    &actorID,
		Type:        model.NotificationProjectInvite,
		Title:       fmt.Sprintf("You were added to %s", project.Title),
		Link:        fmt.Sprintf("/projects/%d", projectID),
		Metadata:    map[string]interface{}{"project_id": projectID, "role": role},
	})
	return m, nil
}

// AddMemberByEmail 按邮箱查找被邀请人
func (s *ProjectService) AddMemberByEmail(ctx context.Context, actorID, projectID uint, email string, role model.ProjectRole) (*model.ProjectMembership, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, util.NewValidationError("email", "email is required")
	}
	user, err := s.UserRepo.WithTx(s.DB.WithContext(ctx)).FindByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("user %s", email)
		}
		return nil, err
	}
	return s.AddMember(ctx, actorID, projectID, user.ID, role)
}

// ListMembers 可访问项目的用户均可查看，按加入时间排序
func (s *ProjectService) ListMembers(ctx context.Context, userID, projectID uint) ([]MemberView, error) {
	if err := s.requireAccess(ctx, userID, projectID); err != nil {
		return nil, err
	}
	db := s.DB.WithContext(ctx)
	members, err := s.Repo.WithTx(db).ListMembers(projectID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	users, err := s.UserRepo.WithTx(db).FindByIDs(ids)
	if err != nil {
		return nil, err
	}
	names := make(map[uint]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}

	out := make([]MemberView, 0, len(members))
	for _, m := range members {
		out = append(out, MemberView{UserID: m.UserID, Name: names[m.UserID], Role: m.Role, JoinedAt: m.JoinedAt})
	}
	return out, nil
}

func (s *ProjectService) CreateTask(ctx context.Context, actorID, projectID uint, in TaskInput) (*model.ProjectTask, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, util.NewValidationError("title", "title is required")
	}
	project, err := s.findProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireEditor(ctx, actorID, project); err != nil {
		return nil, err
	}

	task := &model.ProjectTask{
		ProjectID:   projectID,
		Title:       in.Title,
		Description: in.Description,
		Status:      model.TaskTodo,
		Priority:    in.Priority,
		AssigneeID:  in.AssigneeID,
		CreatedByID: actorID,
		DueDate:     in.DueDate,
	}
	if task.Labels, err = labelsJSON(in.Labels); err != nil {
		return nil, err
	}
	if err := s.Repo.WithTx(s.DB.WithContext(ctx)).CreateTask(task); err != nil {
		return nil, err
	}

	s.broadcastTask(ctx, actorID, task, "created")
	if task.AssigneeID != nil && *task.AssigneeID != actorID {
		s.notifyAssignee(ctx, actorID, project, task)
	}
	return task, nil
}

// UpdateTask 先持久化，再向项目通道广播 task_update
func (s *ProjectService) UpdateTask(ctx context.Context, actorID, taskID uint, upd TaskUpdate) (*model.ProjectTask, error) {
	repo := s.Repo.WithTx(s.DB.WithContext(ctx))
	task, err := repo.FindTask(taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("task %d", taskID)
		}
		return nil, err
	}
	project, err := s.findProject(ctx, task.ProjectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireEditor(ctx, actorID, project); err != nil {
		return nil, err
	}

	previousAssignee := task.AssigneeID
	if upd.Title != nil {
		if strings.TrimSpace(*upd.Title) == "" {
			return nil, util.NewValidationError("title", "title cannot be empty")
		}
		task.Title = *upd.Title
	}
	if upd.Description != nil {
		task.Description = *upd.Description
	}
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return nil, util.NewValidationError("status", "unsupported status %q", *upd.Status)
		}
		task.Status = *upd.Status
	}
	if upd.Priority != nil {
		task.Priority = *upd.Priority
	}
	if upd.AssigneeID != nil {
		task.AssigneeID = upd.AssigneeID
	}
	if upd.DueDate != nil {
		task.DueDate = upd.DueDate
	}
	if upd.Labels != nil {
		if task.Labels, err = labelsJSON(upd.Labels); err != nil {
			return nil, err
		}
	}
	if err := repo.SaveTask(task); err != nil {
		return nil, err
	}

	s.broadcastTask(ctx, actorID, task, "updated")
	if task.AssigneeID != nil && *task.AssigneeID != actorID &&
		(previousAssignee == nil || *previousAssignee != *task.AssigneeID) {
		s.notifyAssignee(ctx, actorID, project, task)
	}
	return task, nil
}

func (s *ProjectService) ListTasks(ctx context.Context, userID, projectID uint, status string) ([]model.ProjectTask, error) {
	if status != "" && !model.TaskStatus(status).Valid() {
		return nil, util.NewValidationError("status", "unsupported status %q", status)
	}
	if err := s.requireAccess(ctx, userID, projectID); err != nil {
		return nil, err
	}
	return s.Repo.WithTx(s.DB.WithContext(ctx)).ListTasks(projectID, status)
}

// Presence 项目通道当前在线的用户
func (s *ProjectService) Presence(ctx context.Context, userID, projectID uint) ([]uint, error) {
	if err := s.requireAccess(ctx, userID, projectID); err != nil {
		return nil, err
	}
	if s.Hub == nil {
		return []uint{}, nil
	}
	return s.Hub.Presence(projectID), nil
}

func (s *ProjectService) broadcastTask(ctx context.Context, actorID uint, task *model.ProjectTask, action string) {
	if s.Hub == nil {
		return
	}
	name := ""
	if u, err := s.UserRepo.WithTx(s.DB.WithContext(ctx)).FindByID(actorID); err == nil {
		name = u.Name
	}
	s.Hub.BroadcastTaskUpdate(task.ProjectID, actorID, name, task.ID, action, task)
}

func (s *ProjectService) notifyAssignee(ctx context.Context, actorID uint, project *model.Project, task *model.ProjectTask) {
	s.notify(ctx, NotifyRequest{
		RecipientID: *task.AssigneeID,
		SenderID:    &actorID,
		Type:        model.NotificationTaskAssigned,
		Title:       fmt.Sprintf("New task in %s: %s", project.Title, task.Title),
		Link:        fmt.Sprintf("/projects/%d/tasks/%d", project.ID, task.ID),
		Metadata:    map[string]interface{}{"project_id": project.ID, "task_id": task.ID},
	})
}

func (s *ProjectService) notify(ctx context.Context, req NotifyRequest) {
	if s.Notifier == nil {
		return
	}
	if _, err := s.Notifier.Notify(ctx, req); err != nil {
		logger.Log.Warn("Project notification failed",
			zap.Uint("recipientId", req.RecipientID),
			zap.String("type", string(req.Type)),
			zap.Error(err),
		)
	}
}

func labelsJSON(labels []string) (datatypes.JSON, error) {
	if len(labels) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(labels)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
