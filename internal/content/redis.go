package content

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/park285/quizduel-backend/internal/quiz"
)

type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

func keySubjects() string                  { return "content:subjects" }
func keySubject(id string) string          { return "content:subject:" + strings.TrimSpace(id) }
func keySubjectBuckets(id string, qt quiz.Type) string {
	return keySubject(id) + ":" + strings.ToLower(string(qt))
}
func keyBucket(b quiz.BucketRef) string          { return "content:bucket:" + b.Key() }
func keyBucketQuestions(b quiz.BucketRef) string { return keyBucket(b) + ":questions" }

func (s *RedisStore) QuestionIDs(ctx context.Context, bucket quiz.BucketRef) ([]string, error) {
	if err := bucket.Validate(); err != nil {
		return nil, err
	}
	ids, err := s.rdb.SMembers(ctx, keyBucketQuestions(bucket)).Result()
	if err != nil {
		return nil, fmt.Errorf("load bucket questions: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) Subjects(ctx context.Context, qt quiz.Type) ([]Subject, error) {
	ids, err := s.rdb.SMembers(ctx, keySubjects()).Result()
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	sort.Strings(ids)
	out := make([]Subject, 0, len(ids))
	for _, id := range ids {
		subj, err := s.loadSubject(ctx, id, qt)
		if err != nil {
			return nil, err
		}
		if subj != nil {
			out = append(out, *subj)
		}
	}
	return out, nil
}

func (s *RedisStore) loadSubject(ctx context.Context, id string, qt quiz.Type) (*Subject, error) {
	raw, err := s.rdb.Get(ctx, keySubject(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load subject %s: %w", id, err)
	}
	var subj Subject
	if err := json.Unmarshal(raw, &subj); err != nil {
		return nil, fmt.Errorf("decode subject %s: %w", id, err)
	}
	bucketIDs, err := s.rdb.SMembers(ctx, keySubjectBuckets(id, qt)).Result()
	if err != nil {
		return nil, fmt.Errorf("list subject buckets: %w", err)
	}
	sort.Strings(bucketIDs)
	subj.Buckets = make([]Bucket, 0, len(bucketIDs))
	for _, bid := range bucketIDs {
		ref := quiz.BucketRef{SubjectID: id, Type: qt, RefID: bid}
		b, err := s.loadBucket(ctx, ref)
		if err != nil {
			return nil, err
		}
		if b != nil {
			subj.Buckets = append(subj.Buckets, *b)
		}
	}
	return &subj, nil
}

func (s *RedisStore) loadBucket(ctx context.Context, ref quiz.BucketRef) (*Bucket, error) {
	raw, err := s.rdb.Get(ctx, keyBucket(ref)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load bucket %s: %w", ref.Key(), err)
	}
	var b Bucket
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode bucket %s: %w", ref.Key(), err)
	}
	n, err := s.rdb.SCard(ctx, keyBucketQuestions(ref)).Result()
	if err != nil {
		return nil, fmt.Errorf("count bucket questions: %w", err)
	}
	b.QuestionCount = int(n)
	return &b, nil
}

// SeedSubject writes a subject document and registers it in the catalog
// index. Used by ingest tooling and tests.
func (s *RedisStore) SeedSubject(ctx context.Context, id, name string) error {
	raw, err := json.Marshal(Subject{ID: id, Name: name})
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, keySubject(id), raw, 0).Err(); err != nil {
		return err
	}
	return s.rdb.SAdd(ctx, keySubjects(), id).Err()
}

// SeedBucket writes a bucket document with its question pool and links it to
// its subject.
func (s *RedisStore) SeedBucket(ctx context.Context, ref quiz.BucketRef, label string, questionIDs []string) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(Bucket{ID: ref.RefID, Label: label})
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, keyBucket(ref), raw, 0).Err(); err != nil {
		return err
	}
	if err := s.rdb.SAdd(ctx, keySubjectBuckets(ref.SubjectID, ref.Type), ref.RefID).Err(); err != nil {
		return err
	}
	if len(questionIDs) == 0 {
		return nil
	}
	members := make([]any, 0, len(questionIDs))
	for _, q := range questionIDs {
		members = append(members, q)
	}
	return s.rdb.SAdd(ctx, keyBucketQuestions(ref), members...).Err()
}
