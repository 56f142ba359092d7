package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vibast-solutions/ms-go-accounts/app/aggregate"
	"github.com/vibast-solutions/ms-go-accounts/app/blobstore"
	"github.com/vibast-solutions/ms-go-accounts/app/entity"
	"github.com/vibast-solutions/ms-go-accounts/app/repository"
	"github.com/vibast-solutions/ms-go-accounts/config"
)

// channelProfileFields is the projection allowlist for channel profiles.
// The collections never read secret columns, but the allowlist keeps the
// contract explicit at the plan level too.
var channelProfileFields = []string{
	"id",
	"handle",
	"email",
	"fullName",
	"avatar",
	"coverImage",
	"subscribersCount",
	"channelsSubscribedToCount",
	"isSubscribed",
	"createdAt",
}

type AccountService struct {
	accounts      *repository.AccountRepository
	subscriptions *repository.SubscriptionRepository
	videos        *repository.VideoRepository
	watch         *repository.WatchHistoryRepository

	accountDocs      aggregate.Collection
	subscriptionDocs aggregate.Collection
	videoDocs        aggregate.Collection

	tokens   *TokenService
	uploader blobstore.Uploader
	cfg      *config.Config
}

func NewAccountService(
	accounts *repository.AccountRepository,
	subscriptions *repository.SubscriptionRepository,
	videos *repository.VideoRepository,
	watch *repository.WatchHistoryRepository,
	accountDocs aggregate.Collection,
	subscriptionDocs aggregate.Collection,
	videoDocs aggregate.Collection,
	tokens *TokenService,
	uploader blobstore.Uploader,
	cfg *config.Config,
) *AccountService {
	return &AccountService{
		accounts:         accounts,
		subscriptions:    subscriptions,
		videos:           videos,
		watch:            watch,
		accountDocs:      accountDocs,
		subscriptionDocs: subscriptionDocs,
		videoDocs:        videoDocs,
		tokens:           tokens,
		uploader:         uploader,
		cfg:              cfg,
	}
}

type RegisterInput struct {
	FullName       string
	Email          string
	Handle         string
	Password       string
	AvatarPath     string
	CoverImagePath string
}

// Register creates an account. The avatar upload is mandatory: when it
// fails, registration is aborted before anything is written. A failed
// cover-image upload only drops the cover image. The unique indexes on
// handle and email are the final authority on duplicates; the pre-check
// is a fast-path rejection.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*entity.Account, error) {
	fullName := strings.TrimSpace(in.FullName)
	handle := CanonicalizeHandle(in.Handle)
	email := CanonicalizeEmail(in.Email)

	if fullName == "" || handle == "" || email == "" || strings.TrimSpace(in.Password) == "" {
		return nil, ErrValidation
	}
	if in.AvatarPath == "" {
		return nil, ErrAvatarRequired
	}

	existing, err := s.accounts.FindByHandleOrEmail(ctx, handle, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAccountExists
	}

	// The only place besides ChangePassword where a plaintext password is
	// turned into a hash; the hash is computed exactly once per write.
	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	avatarURL, err := s.uploader.Upload(ctx, in.AvatarPath)
	if err != nil {
		return nil, ErrAvatarRequired
	}

	coverImage := sql.NullString{}
	if in.CoverImagePath != "" {
		if coverURL, err := s.uploader.Upload(ctx, in.CoverImagePath); err == nil {
			coverImage = sql.NullString{String: coverURL, Valid: true}
		}
	}

	now := time.Now()
	account := &entity.Account{
		Handle:       handle,
		Email:        email,
		FullName:     fullName,
		Avatar:       avatarURL,
		CoverImage:   coverImage,
		PasswordHash: string(hashed),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAccountExists
		}
		return nil, err
	}

	return account.Sanitized(), nil
}

type LoginResult struct {
	Account      *entity.Account
	AccessToken  string
	RefreshToken string
}

// Login authenticates by handle or email and starts a session: a fresh
// token pair is issued and the refresh value is persisted on the
// account, replacing whatever session existed before.
func (s *AccountService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || password == "" {
		return nil, ErrValidation
	}

	account, err := s.accounts.FindByHandleOrEmail(ctx, identifier, identifier)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrWrongPassword
	}

	accessToken, refreshToken, err := s.tokens.IssuePair(account)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.SetRefreshToken(ctx, account.ID, sql.NullString{String: refreshToken, Valid: true}); err != nil {
		return nil, err
	}

	return &LoginResult{
		Account:      account.Sanitized(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Logout revokes the current session by clearing the stored refresh
// token. Any refresh token presented afterwards fails rotation.
func (s *AccountService) Logout(ctx context.Context, accountID uint64) error {
	return s.accounts.SetRefreshToken(ctx, accountID, sql.NullString{})
}

// Rotate exchanges a valid refresh token for a fresh pair. The presented
// value must equal the one stored on the account; the compare and the
// overwrite happen in a single conditional update, so each issued value
// rotates at most once even under concurrent presentation.
func (s *AccountService) Rotate(ctx context.Context, presented string) (*LoginResult, error) {
	if strings.TrimSpace(presented) == "" {
		return nil, ErrUnauthorized
	}

	accountID, err := s.tokens.VerifyRefresh(presented)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrInvalidToken
	}

	accessToken, refreshToken, err := s.tokens.IssuePair(account)
	if err != nil {
		return nil, err
	}

	ok, err := s.accounts.RotateRefreshToken(ctx, account.ID, presented, refreshToken)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTokenReused
	}

	return &LoginResult{
		Account:      account.Sanitized(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func (s *AccountService) ChangePassword(ctx context.Context, accountID uint64, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return ErrValidation
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrAccountNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrWrongPassword
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return err
	}

	return s.accounts.UpdatePasswordHash(ctx, accountID, string(hashed))
}

func (s *AccountService) GetProfile(ctx context.Context, accountID uint64) (*entity.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account.Sanitized(), nil
}

func (s *AccountService) UpdateProfile(ctx context.Context, accountID uint64, fullName, email string) (*entity.Account, error) {
	fullName = strings.TrimSpace(fullName)
	email = CanonicalizeEmail(email)
	if fullName == "" || email == "" {
		return nil, ErrValidation
	}

	// Fast path before the write; the unique index on email is still
	// the final authority.
	existing, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ID != accountID {
		return nil, ErrAccountExists
	}

	if err := s.accounts.UpdateProfile(ctx, accountID, fullName, email); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAccountExists
		}
		return nil, err
	}

	return s.GetProfile(ctx, accountID)
}

// UpdateAvatar uploads the new image and swaps the stored URL. The
// caller owns cleanup of the local temporary file.
func (s *AccountService) UpdateAvatar(ctx context.Context, accountID uint64, localPath string) (*entity.Account, error) {
	if localPath == "" {
		return nil, ErrAvatarRequired
	}

	avatarURL, err := s.uploader.Upload(ctx, localPath)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.UpdateAvatar(ctx, accountID, avatarURL); err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, accountID)
}

func (s *AccountService) UpdateCoverImage(ctx context.Context, accountID uint64, localPath string) (*entity.Account, error) {
	if localPath == "" {
		return nil, ErrValidation
	}

	coverURL, err := s.uploader.Upload(ctx, localPath)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.UpdateCoverImage(ctx, accountID, coverURL); err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, accountID)
}

// Subscribe adds the (subscriber, channel) edge. The composite unique
// index keeps the edge set free of duplicate pairs.
func (s *AccountService) Subscribe(ctx context.Context, subscriberID uint64, channelHandle string) error {
	channel, err := s.accounts.FindByHandle(ctx, CanonicalizeHandle(channelHandle))
	if err != nil {
		return err
	}
	if channel == nil {
		return ErrAccountNotFound
	}
	if channel.ID == subscriberID {
		return ErrValidation
	}

	// Fast path before the insert; the composite unique index is still
	// the final authority.
	exists, err := s.subscriptions.Exists(ctx, subscriberID, channel.ID)
	if err != nil {
		return err
	}
	if exists {
		return ErrSubscriptionExists
	}

	err = s.subscriptions.Create(ctx, &entity.Subscription{
		SubscriberID: subscriberID,
		ChannelID:    channel.ID,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return ErrSubscriptionExists
	}
	return err
}

func (s *AccountService) Unsubscribe(ctx context.Context, subscriberID uint64, channelHandle string) error {
	channel, err := s.accounts.FindByHandle(ctx, CanonicalizeHandle(channelHandle))
	if err != nil {
		return err
	}
	if channel == nil {
		return ErrAccountNotFound
	}

	deleted, err := s.subscriptions.DeleteByPair(ctx, subscriberID, channel.ID)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// AddToWatchHistory appends a video to the account's watch history.
func (s *AccountService) AddToWatchHistory(ctx context.Context, accountID, videoID uint64) error {
	video, err := s.videos.FindByID(ctx, videoID)
	if err != nil {
		return err
	}
	if video == nil {
		return ErrVideoNotFound
	}
	return s.watch.Append(ctx, accountID, videoID)
}

// ChannelProfile computes the aggregated channel view for a handle:
// subscriber and subscribed-to counts plus whether the viewer already
// subscribes. viewerID 0 means no viewer context, so isSubscribed is
// false.
func (s *AccountService) ChannelProfile(ctx context.Context, handle string, viewerID uint64) (aggregate.Document, error) {
	handle = CanonicalizeHandle(handle)
	if handle == "" {
		return nil, ErrValidation
	}

	pipeline := aggregate.New(
		s.accountDocs,
		aggregate.Filter{"handle": handle},
		aggregate.Lookup{From: s.subscriptionDocs, LocalField: "id", ForeignField: "channel", As: "subscribers"},
		aggregate.Lookup{From: s.subscriptionDocs, LocalField: "id", ForeignField: "subscriber", As: "subscribedTo"},
		aggregate.Derive{Field: "subscribersCount", Fn: func(d aggregate.Document) any {
			return len(aggregate.Joined(d, "subscribers"))
		}},
		aggregate.Derive{Field: "channelsSubscribedToCount", Fn: func(d aggregate.Document) any {
			return len(aggregate.Joined(d, "subscribedTo"))
		}},
		aggregate.Derive{Field: "isSubscribed", Fn: func(d aggregate.Document) any {
			if viewerID == 0 {
				return false
			}
			for _, edge := range aggregate.Joined(d, "subscribers") {
				if edge["subscriber"] == viewerID {
					return true
				}
			}
			return false
		}},
		aggregate.Project{Fields: channelProfileFields},
	)

	docs, err := pipeline.Run(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) != 1 {
		return nil, ErrAccountNotFound
	}
	return docs[0], nil
}

// WatchHistory returns the account's watched videos in insertion order,
// each enriched with an owner projected to {fullName, handle, avatar}.
func (s *AccountService) WatchHistory(ctx context.Context, accountID uint64) ([]aggregate.Document, error) {
	pipeline := aggregate.New(
		s.accountDocs,
		aggregate.Filter{"id": accountID},
		aggregate.Lookup{From: s.videoDocs, LocalField: "watchHistory", ForeignField: "id", As: "watchHistory"},
		aggregate.Project{Fields: []string{"id", "watchHistory"}},
	)

	docs, err := pipeline.Run(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) != 1 {
		return nil, ErrAccountNotFound
	}

	videos := aggregate.Joined(docs[0], "watchHistory")
	enrich := aggregate.Lookup{
		From:         s.accountDocs,
		LocalField:   "owner",
		ForeignField: "id",
		As:           "owner",
		Project:      []string{"fullName", "handle", "avatar"},
		Single:       true,
	}
	return enrich.Apply(ctx, videos)
}

// CanonicalizeHandle lower-cases and trims a handle; handles are
// compared case-insensitively everywhere.
func CanonicalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

func CanonicalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
