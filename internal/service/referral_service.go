package service

import (
	"context"
	"fmt"

	"earnlink/internal/model"
	"earnlink/internal/repository"
)

const DefaultTreeDepth = 2

// TreeNode 邀请树节点，Children 按注册顺序排列
type TreeNode struct {
	*model.User
	Children []*TreeNode `json:"children"`
}

type ReferralService struct {
	store repository.Store
}

func NewReferralService(deps Dependencies) *ReferralService {
	return &ReferralService{store: deps.Store}
}

// GetReferralTree 返回 userID 的下级，最多展开 maxDepth 层。已出现在树上的节点不再展开
func (s *ReferralService) GetReferralTree(ctx context.Context, userID int64, maxDepth int) ([]*TreeNode, error) {
	if _, err := s.store.Users().GetByID(ctx, userID); err != nil {
		return nil, mapUserErr(err)
	}
	visited := map[int64]bool{userID: true}
	return s.children(ctx, userID, maxDepth, visited)
}

func (s *ReferralService) children(ctx context.Context, parentID int64, remaining int, visited map[int64]bool) ([]*TreeNode, error) {
	nodes := make([]*TreeNode, 0)
	if remaining <= 0 {
		return nodes, nil
	}

	users, err := s.store.Users().ListByReferrer(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("查询下级失败: %w", err)
	}
	for _, u := range users {
		if visited[u.ID] {
			continue
		}
		visited[u.ID] = true

		sub, err := s.children(ctx, u.ID, remaining-1, visited)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &TreeNode{User: u, Children: sub})
	}
	return nodes, nil
}

// GetDirectReferrals 直接邀请的用户
func (s *ReferralService) GetDirectReferrals(ctx context.Context, userID int64) ([]*model.User, error) {
	if _, err := s.store.Users().GetByID(ctx, userID); err != nil {
		return nil, mapUserErr(err)
	}
	return s.store.Users().ListByReferrer(ctx, userID)
}
