package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"planmarket/internal/config"
	"planmarket/internal/domain/event"
	"planmarket/internal/domain/model"
	"planmarket/internal/logging"
	repo "planmarket/internal/repository"
)

// ReviewUsecase gates reviews on completed purchases and keeps the product
// and seller rating aggregates in step with the PUBLISHED set.
type ReviewUsecase struct {
	tx         repo.TransactionManager
	reviews    repo.ReviewRepository
	feedback   repo.ReviewFeedbackRepository
	ratings    repo.RatingRepository
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	files      repo.FileRepository
	notifier   Notifier
	policy     config.Policy
	ids        IDGenerator
	clock      Clock
}

func NewReviewUsecase(
	tx repo.TransactionManager,
	reviews repo.ReviewRepository,
	feedback repo.ReviewFeedbackRepository,
	ratings repo.RatingRepository,
	orders repo.OrderRepository,
	orderItems repo.OrderItemRepository,
	files repo.FileRepository,
	notifier Notifier,
	policy config.Policy,
	ids IDGenerator,
	clock Clock,
) *ReviewUsecase {
	return &ReviewUsecase{
		tx:         tx,
		reviews:    reviews,
		feedback:   feedback,
		ratings:    ratings,
		orders:     orders,
		orderItems: orderItems,
		files:      files,
		notifier:   notifier,
		policy:     policy,
		ids:        ids,
		clock:      clock,
	}
}

type CreateReviewInput struct {
	OrderID      string   `json:"order_id"`
	ProductID    string   `json:"product_id"`
	Rating       int      `json:"rating"`
	Title        string   `json:"title"`
	Pros         string   `json:"pros"`
	Cons         string   `json:"cons"`
	Comment      string   `json:"comment"`
	ImageFileIDs []string `json:"image_file_ids"`
}

// UpdateReviewInput leaves nil fields untouched.
type UpdateReviewInput struct {
	Rating       *int      `json:"rating"`
	Title        *string   `json:"title"`
	Pros         *string   `json:"pros"`
	Cons         *string   `json:"cons"`
	Comment      *string   `json:"comment"`
	ImageFileIDs *[]string `json:"image_file_ids"`
}

type ReviewDetail struct {
	model.Review
	Images   []model.ReviewImage   `json:"images"`
	Response *model.ReviewResponse `json:"response,omitempty"`
}

type ReviewListOutput struct {
	Items []model.Review `json:"items"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

func (u *ReviewUsecase) Create(ctx context.Context, buyerID string, in CreateReviewInput) (model.Review, error) {
	if buyerID == "" {
		return model.Review{}, unauthorized()
	}
	if in.Rating < 1 || in.Rating > 5 {
		return model.Review{}, badRequest(MsgReviewInvalidRating)
	}
	if strings.TrimSpace(in.Comment) == "" {
		return model.Review{}, badRequest(MsgInvalidInput)
	}

	o, err := u.orders.FindByID(ctx, in.OrderID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && o.BuyerID != buyerID) {
		return model.Review{}, notFound(MsgOrderNotFound)
	}
	if err != nil {
		return model.Review{}, fmt.Errorf("find order: %w", err)
	}
	if o.Status != model.OrderStatusCompleted {
		return model.Review{}, badRequest(MsgOrderNotCompleted)
	}
	item, err := u.orderItems.FindByOrderAndProduct(ctx, o.ID, in.ProductID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Review{}, notFound(MsgReviewNotPurchased)
	}
	if err != nil {
		return model.Review{}, fmt.Errorf("find order item: %w", err)
	}

	exists, err := u.reviews.ExistsForPurchase(ctx, o.ID, in.ProductID, buyerID)
	if err != nil {
		return model.Review{}, fmt.Errorf("check existing review: %w", err)
	}
	if exists {
		return model.Review{}, conflict(MsgReviewAlreadyExists)
	}

	imageIDs, err := u.validateImages(ctx, buyerID, in.ImageFileIDs)
	if err != nil {
		return model.Review{}, err
	}

	now := u.clock.Now()
	review := &model.Review{
		ID:        u.ids.NewID(),
		OrderID:   o.ID,
		ProductID: in.ProductID,
		BuyerID:   buyerID,
		SellerID:  item.SellerID,
		Rating:    in.Rating,
		Title:     strings.TrimSpace(in.Title),
		Pros:      strings.TrimSpace(in.Pros),
		Cons:      strings.TrimSpace(in.Cons),
		Comment:   strings.TrimSpace(in.Comment),
		Status:    model.ReviewStatusPendingModeration,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Reviews().Create(ctx, review); err != nil {
			return err
		}
		if err := r.Reviews().CreateImages(ctx, u.imageRows(review.ID, imageIDs)); err != nil {
			return fmt.Errorf("link review images: %w", err)
		}
		review.Status = u.autoModerate(*review)
		if review.Status != model.ReviewStatusPendingModeration {
			if err := r.Reviews().Save(ctx, review); err != nil {
				return fmt.Errorf("save moderated review: %w", err)
			}
		}
		return u.recompute(ctx, r, review.ProductID, review.SellerID)
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return model.Review{}, conflict(MsgReviewAlreadyExists)
	}
	if err != nil {
		return model.Review{}, err
	}

	logging.FromContext(ctx).Info("review created", "review_id", review.ID, "product_id", review.ProductID, "status", review.Status)
	if review.Status == model.ReviewStatusPublished {
		u.notify(ctx, event.NotifyReviewPublished, review.SellerID, map[string]string{
			"review_id":  review.ID,
			"product_id": review.ProductID,
		})
	}
	return *review, nil
}

// Update edits the caller's own review and sends it through moderation again.
func (u *ReviewUsecase) Update(ctx context.Context, buyerID, reviewID string, in UpdateReviewInput) (model.Review, error) {
	review, err := u.findReview(ctx, reviewID)
	if err != nil {
		return model.Review{}, err
	}
	if review.BuyerID != buyerID {
		return model.Review{}, forbidden(MsgForbidden)
	}
	if !review.Editable() {
		return model.Review{}, badRequest(MsgReviewNotEditable)
	}

	if in.Rating != nil {
		if *in.Rating < 1 || *in.Rating > 5 {
			return model.Review{}, badRequest(MsgReviewInvalidRating)
		}
		review.Rating = *in.Rating
	}
	if in.Title != nil {
		review.Title = strings.TrimSpace(*in.Title)
	}
	if in.Pros != nil {
		review.Pros = strings.TrimSpace(*in.Pros)
	}
	if in.Cons != nil {
		review.Cons = strings.TrimSpace(*in.Cons)
	}
	if in.Comment != nil {
		if strings.TrimSpace(*in.Comment) == "" {
			return model.Review{}, badRequest(MsgInvalidInput)
		}
		review.Comment = strings.TrimSpace(*in.Comment)
	}
	var imageIDs []string
	if in.ImageFileIDs != nil {
		imageIDs, err = u.validateImages(ctx, buyerID, *in.ImageFileIDs)
		if err != nil {
			return model.Review{}, err
		}
	}

	now := u.clock.Now()
	review.EditedAt = &now
	review.UpdatedAt = now
	review.Status = u.autoModerate(review)

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Reviews().Save(ctx, &review); err != nil {
			return fmt.Errorf("save review: %w", err)
		}
		if in.ImageFileIDs != nil {
			if err := r.Reviews().ReplaceImages(ctx, review.ID, u.imageRows(review.ID, imageIDs)); err != nil {
				return fmt.Errorf("replace review images: %w", err)
			}
		}
		return u.recompute(ctx, r, review.ProductID, review.SellerID)
	})
	if err != nil {
		return model.Review{}, err
	}
	return review, nil
}

// Vote records one helpful/not-helpful vote per user. Switching sides moves
// both counters; repeating the same vote changes nothing.
func (u *ReviewUsecase) Vote(ctx context.Context, userID, reviewID string, helpful bool) (model.Review, error) {
	if userID == "" {
		return model.Review{}, unauthorized()
	}
	review, err := u.findReview(ctx, reviewID)
	if err != nil {
		return model.Review{}, err
	}
	if review.Status != model.ReviewStatusPublished {
		return model.Review{}, badRequest(MsgReviewNotPublished)
	}
	if review.BuyerID == userID {
		return model.Review{}, forbidden(MsgReviewOwnVote)
	}

	var updated model.Review
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		now := u.clock.Now()
		vote, err := r.ReviewFeedback().FindVote(ctx, reviewID, userID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			if err := r.ReviewFeedback().CreateVote(ctx, &model.ReviewVote{
				ID:        u.ids.NewID(),
				ReviewID:  reviewID,
				UserID:    userID,
				Helpful:   helpful,
				CreatedAt: now,
				UpdatedAt: now,
			}); err != nil {
				return fmt.Errorf("create vote: %w", err)
			}
			if err := r.ReviewFeedback().AdjustVoteCounters(ctx, reviewID, boolDelta(helpful), boolDelta(!helpful)); err != nil {
				return fmt.Errorf("adjust vote counters: %w", err)
			}
		case err != nil:
			return fmt.Errorf("find vote: %w", err)
		case vote.Helpful != helpful:
			vote.Helpful = helpful
			vote.UpdatedAt = now
			if err := r.ReviewFeedback().SaveVote(ctx, &vote); err != nil {
				return fmt.Errorf("save vote: %w", err)
			}
			if helpful {
				err = r.ReviewFeedback().AdjustVoteCounters(ctx, reviewID, 1, -1)
			} else {
				err = r.ReviewFeedback().AdjustVoteCounters(ctx, reviewID, -1, 1)
			}
			if err != nil {
				return fmt.Errorf("adjust vote counters: %w", err)
			}
		}
		updated, err = r.Reviews().FindByID(ctx, reviewID)
		return err
	})
	if err != nil {
		return model.Review{}, err
	}
	return updated, nil
}

// Report files one report per reporter. Enough unresolved reports pull a
// PUBLISHED review back into FLAGGED.
func (u *ReviewUsecase) Report(ctx context.Context, reporterID, reviewID, reason, details string) (model.Review, error) {
	if reporterID == "" {
		return model.Review{}, unauthorized()
	}
	if strings.TrimSpace(reason) == "" {
		return model.Review{}, badRequest(MsgInvalidInput)
	}
	review, err := u.findReview(ctx, reviewID)
	if err != nil {
		return model.Review{}, err
	}
	if review.BuyerID == reporterID {
		return model.Review{}, forbidden(MsgForbidden)
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.ReviewFeedback().CreateReport(ctx, &model.ReviewReport{
			ID:         u.ids.NewID(),
			ReviewID:   reviewID,
			ReporterID: reporterID,
			Reason:     strings.TrimSpace(reason),
			Details:    strings.TrimSpace(details),
			CreatedAt:  u.clock.Now(),
		}); err != nil {
			return err
		}
		if review.Status != model.ReviewStatusPublished {
			return nil
		}
		n, err := r.ReviewFeedback().CountUnresolvedReports(ctx, reviewID)
		if err != nil {
			return fmt.Errorf("count reports: %w", err)
		}
		if int(n) < u.policy.ReportFlagThreshold {
			return nil
		}
		review.Status = model.ReviewStatusFlagged
		review.UpdatedAt = u.clock.Now()
		if err := r.Reviews().Save(ctx, &review); err != nil {
			return fmt.Errorf("flag review: %w", err)
		}
		logging.FromContext(ctx).Info("review auto-flagged by reports", "review_id", reviewID, "reports", n)
		return u.recompute(ctx, r, review.ProductID, review.SellerID)
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return model.Review{}, conflict(MsgReviewAlreadyReported)
	}
	if err != nil {
		return model.Review{}, err
	}
	return review, nil
}

// Respond stores the seller's single public answer to a PUBLISHED review.
func (u *ReviewUsecase) Respond(ctx context.Context, sellerID, reviewID, body string) (model.ReviewResponse, error) {
	if sellerID == "" {
		return model.ReviewResponse{}, unauthorized()
	}
	if strings.TrimSpace(body) == "" {
		return model.ReviewResponse{}, badRequest(MsgInvalidInput)
	}
	review, err := u.findReview(ctx, reviewID)
	if err != nil {
		return model.ReviewResponse{}, err
	}
	if review.SellerID != sellerID {
		return model.ReviewResponse{}, forbidden(MsgForbidden)
	}
	if review.Status != model.ReviewStatusPublished {
		return model.ReviewResponse{}, badRequest(MsgReviewNotPublished)
	}

	now := u.clock.Now()
	resp := &model.ReviewResponse{
		ID:        u.ids.NewID(),
		ReviewID:  reviewID,
		SellerID:  sellerID,
		Body:      strings.TrimSpace(body),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.feedback.CreateResponse(ctx, resp); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return model.ReviewResponse{}, conflict(MsgReviewResponseExists)
		}
		return model.ReviewResponse{}, fmt.Errorf("create review response: %w", err)
	}

	u.notify(ctx, event.NotifyReviewResponse, review.BuyerID, map[string]string{
		"review_id":  review.ID,
		"product_id": review.ProductID,
	})
	return *resp, nil
}

// Moderate is the admin decision on a review. PUBLISHED and REMOVED close
// any open reports.
func (u *ReviewUsecase) Moderate(ctx context.Context, adminID, reviewID string, status model.ReviewStatus, note string) (model.Review, error) {
	switch status {
	case model.ReviewStatusPublished, model.ReviewStatusFlagged, model.ReviewStatusRemoved:
	default:
		return model.Review{}, badRequest(MsgReviewInvalidStatus)
	}
	review, err := u.findReview(ctx, reviewID)
	if err != nil {
		return model.Review{}, err
	}

	before := review.Status
	now := u.clock.Now()
	review.Status = status
	review.ModeratedBy = &adminID
	review.ModeratedAt = &now
	review.ModerationNote = strings.TrimSpace(note)
	review.UpdatedAt = now

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Reviews().Save(ctx, &review); err != nil {
			return fmt.Errorf("save review: %w", err)
		}
		if status == model.ReviewStatusPublished || status == model.ReviewStatusRemoved {
			if err := r.ReviewFeedback().ResolveReports(ctx, reviewID, now); err != nil {
				return fmt.Errorf("resolve reports: %w", err)
			}
		}
		beforeJSON, _ := json.Marshal(map[string]string{"status": string(before)})
		afterJSON, _ := json.Marshal(map[string]string{"status": string(status), "note": review.ModerationNote})
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ID:           u.ids.NewID(),
			ActorUserID:  adminID,
			Action:       model.AuditActionModerateReview,
			ResourceType: model.AuditResourceReview,
			ResourceID:   reviewID,
			BeforeJSON:   string(beforeJSON),
			AfterJSON:    string(afterJSON),
			CreatedAt:    now,
		}); err != nil {
			return fmt.Errorf("write review audit: %w", err)
		}
		return u.recompute(ctx, r, review.ProductID, review.SellerID)
	})
	if err != nil {
		return model.Review{}, err
	}
	return review, nil
}

// Delete removes a review with all child rows. Owner or admin only.
func (u *ReviewUsecase) Delete(ctx context.Context, actorID string, actorRole model.Role, reviewID string) error {
	review, err := u.findReview(ctx, reviewID)
	if err != nil {
		return err
	}
	if actorRole != model.RoleAdmin && review.BuyerID != actorID {
		return forbidden(MsgForbidden)
	}
	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Reviews().DeleteCascade(ctx, reviewID); err != nil {
			return fmt.Errorf("delete review: %w", err)
		}
		return u.recompute(ctx, r, review.ProductID, review.SellerID)
	})
}

// Get returns a published review, or any review to its author.
func (u *ReviewUsecase) Get(ctx context.Context, reviewID, viewerID string) (ReviewDetail, error) {
	review, err := u.findReview(ctx, reviewID)
	if err != nil {
		return ReviewDetail{}, err
	}
	if review.Status != model.ReviewStatusPublished && review.BuyerID != viewerID {
		return ReviewDetail{}, notFound(MsgReviewNotFound)
	}
	d := ReviewDetail{Review: review, Images: []model.ReviewImage{}}
	images, err := u.reviews.ListImages(ctx, reviewID)
	if err != nil {
		logging.FromContext(ctx).Warn("list review images failed", "review_id", reviewID, "err", err)
	} else {
		d.Images = images
	}
	resp, err := u.feedback.FindResponse(ctx, reviewID)
	if err == nil {
		d.Response = &resp
	} else if !errors.Is(err, repo.ErrNotFound) {
		logging.FromContext(ctx).Warn("find review response failed", "review_id", reviewID, "err", err)
	}
	return d, nil
}

func (u *ReviewUsecase) ListForProduct(ctx context.Context, productID string, q repo.ReviewListQuery) (ReviewListOutput, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 20
	}
	switch q.Sort {
	case "", "new", "helpful", "rating_desc", "rating_asc":
	default:
		return ReviewListOutput{}, badRequest(MsgInvalidInput)
	}
	if q.Rating < 0 || q.Rating > 5 {
		return ReviewListOutput{}, badRequest(MsgReviewInvalidRating)
	}
	items, total, err := u.reviews.ListPublishedByProduct(ctx, productID, q)
	if err != nil {
		return ReviewListOutput{}, fmt.Errorf("list reviews: %w", err)
	}
	return ReviewListOutput{Items: items, Total: total, Page: q.Page, Limit: q.Limit}, nil
}

func (u *ReviewUsecase) ListByStatus(ctx context.Context, status model.ReviewStatus, page, limit int) (ReviewListOutput, error) {
	switch status {
	case model.ReviewStatusPendingModeration, model.ReviewStatusPublished, model.ReviewStatusFlagged, model.ReviewStatusRemoved:
	default:
		return ReviewListOutput{}, badRequest(MsgReviewInvalidStatus)
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	items, total, err := u.reviews.ListByStatus(ctx, status, page, limit)
	if err != nil {
		return ReviewListOutput{}, fmt.Errorf("list reviews: %w", err)
	}
	return ReviewListOutput{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func (u *ReviewUsecase) ProductRating(ctx context.Context, productID string) (model.ProductRating, error) {
	r, err := u.ratings.FindProduct(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.ProductRating{ProductID: productID, RatingStats: model.ComputeRatingStats(nil)}, nil
	}
	if err != nil {
		return model.ProductRating{}, fmt.Errorf("find product rating: %w", err)
	}
	return r, nil
}

func (u *ReviewUsecase) SellerRating(ctx context.Context, sellerID string) (model.SellerRating, error) {
	r, err := u.ratings.FindSeller(ctx, sellerID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.SellerRating{SellerID: sellerID, RatingStats: model.ComputeRatingStats(nil)}, nil
	}
	if err != nil {
		return model.SellerRating{}, fmt.Errorf("find seller rating: %w", err)
	}
	return r, nil
}

// autoModerate flags denylisted wording and, when configured, every one-star
// review. Everything else is published.
func (u *ReviewUsecase) autoModerate(r model.Review) model.ReviewStatus {
	if r.Rating == 1 && u.policy.FlagOneStarReviews {
		return model.ReviewStatusFlagged
	}
	text := strings.ToLower(strings.Join([]string{r.Title, r.Pros, r.Cons, r.Comment}, " "))
	for _, term := range u.policy.ModerationDenylist {
		if strings.Contains(text, term) {
			return model.ReviewStatusFlagged
		}
	}
	return model.ReviewStatusPublished
}

// recompute rebuilds both aggregates from the PUBLISHED set.
func (u *ReviewUsecase) recompute(ctx context.Context, r repo.TxRepos, productID, sellerID string) error {
	now := u.clock.Now()

	productRatings, err := r.Reviews().PublishedRatingsByProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("load product ratings: %w", err)
	}
	if err := r.Ratings().SaveProduct(ctx, model.ProductRating{
		ProductID:   productID,
		RatingStats: model.ComputeRatingStats(productRatings),
		UpdatedAt:   now,
	}); err != nil {
		return fmt.Errorf("save product rating: %w", err)
	}

	sellerRatings, err := r.Reviews().PublishedRatingsBySeller(ctx, sellerID)
	if err != nil {
		return fmt.Errorf("load seller ratings: %w", err)
	}
	if err := r.Ratings().SaveSeller(ctx, model.SellerRating{
		SellerID:    sellerID,
		RatingStats: model.ComputeRatingStats(sellerRatings),
		UpdatedAt:   now,
	}); err != nil {
		return fmt.Errorf("save seller rating: %w", err)
	}
	return nil
}

// validateImages dedups ids and checks each is a file owned by the buyer.
func (u *ReviewUsecase) validateImages(ctx context.Context, buyerID string, ids []string) ([]string, error) {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) > u.policy.ReviewImageLimit {
		return nil, badRequest(MsgReviewTooManyImages)
	}
	if len(out) == 0 {
		return out, nil
	}
	files, err := u.files.FindByIDs(ctx, out)
	if err != nil {
		return nil, fmt.Errorf("find review images: %w", err)
	}
	owned := make(map[string]bool, len(files))
	for _, f := range files {
		if f.OwnerID == buyerID && f.Kind == model.FileKindReviewImage {
			owned[f.ID] = true
		}
	}
	for _, id := range out {
		if !owned[id] {
			return nil, badRequest(MsgReviewInvalidImage)
		}
	}
	return out, nil
}

func (u *ReviewUsecase) imageRows(reviewID string, fileIDs []string) []model.ReviewImage {
	now := u.clock.Now()
	rows := make([]model.ReviewImage, 0, len(fileIDs))
	for i, id := range fileIDs {
		rows = append(rows, model.ReviewImage{
			ID:        u.ids.NewID(),
			ReviewID:  reviewID,
			FileID:    id,
			Position:  i,
			CreatedAt: now,
		})
	}
	return rows
}

func (u *ReviewUsecase) findReview(ctx context.Context, reviewID string) (model.Review, error) {
	review, err := u.reviews.FindByID(ctx, reviewID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Review{}, notFound(MsgReviewNotFound)
	}
	if err != nil {
		return model.Review{}, fmt.Errorf("find review: %w", err)
	}
	return review, nil
}

func (u *ReviewUsecase) notify(ctx context.Context, typ event.NotificationType, recipient string, data map[string]string) {
	if u.notifier == nil || recipient == "" {
		return
	}
	if err := u.notifier.Notify(ctx, event.Notification{
		Type:        typ,
		RecipientID: recipient,
		Data:        data,
		OccurredAt:  u.clock.Now(),
	}); err != nil {
		logging.FromContext(ctx).Warn("notification failed", "type", typ, "recipient_id", recipient, "err", err)
	}
}

func boolDelta(b bool) int {
	if b {
		return 1
	}
	return 0
}
