package workflow

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/mmdatafocus/double_entry/models"
	"github.com/mmdatafocus/double_entry/utils"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// JournalSequence hands out journal numbers per business: monotonic, gaps allowed.
// With Redis the counter lives in "<business>-journal_seq" and is seeded from the
// database on first use; without Redis it falls back to max(journal_number)+1 and
// relies on the unique index to reject collisions.
type JournalSequence struct {
	DB    *gorm.DB
	Redis *redis.Client

	mu sync.Mutex
}

func journalSequenceKey(businessId string) string {
	return businessId + "-journal_seq"
}

func (s *JournalSequence) Next(ctx context.Context, businessId string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Redis == nil {
		dbMax, err := s.maxJournalNumber(ctx, businessId)
		if err != nil {
			return 0, err
		}
		return dbMax + 1, nil
	}

	cacheKey := journalSequenceKey(businessId)
	for {
		seqNo, err := s.Redis.Incr(ctx, cacheKey).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: journal sequence: %v", utils.ErrExternalDependency, err)
		}
		// a fresh counter knows nothing about journals already in the database
		if seqNo == 1 {
			dbMax, err := s.maxJournalNumber(ctx, businessId)
			if err != nil {
				return 0, err
			}
			seqNo = dbMax + 1
			if err := s.Redis.Set(ctx, cacheKey, strconv.FormatInt(seqNo, 10), 0).Err(); err != nil {
				return 0, fmt.Errorf("%w: journal sequence: %v", utils.ErrExternalDependency, err)
			}
		}
		taken, err := s.numberTaken(ctx, businessId, seqNo)
		if err != nil {
			return 0, err
		}
		if !taken {
			return seqNo, nil
		}
	}
}

func (s *JournalSequence) maxJournalNumber(ctx context.Context, businessId string) (int64, error) {
	var dbSeq *int64
	err := s.DB.WithContext(utils.SetBusinessIdInContext(ctx, businessId)).
		Model(&models.Journal{}).
		Select("max(journal_number)").
		Where("business_id = ?", businessId).
		Scan(&dbSeq).Error
	if err != nil {
		return 0, err
	}
	if dbSeq == nil {
		return 0, nil
	}
	return *dbSeq, nil
}

func (s *JournalSequence) numberTaken(ctx context.Context, businessId string, seqNo int64) (bool, error) {
	var count int64
	err := s.DB.WithContext(utils.SetBusinessIdInContext(ctx, businessId)).
		Model(&models.Journal{}).
		Where("business_id = ? AND journal_number = ?", businessId, seqNo).
		Count(&count).Error
	return count > 0, err
}
