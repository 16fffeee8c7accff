package enrich

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/lessonforge/internal/data/repos/lessons"
	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
)

type speechJob struct {
	id   uuid.UUID
	text string
	key  string
}

// WordAudio fills pronunciation for the activity's words with one bulk call,
// then renders speech for every word lacking audio. Per-word render failures
// only omit the URL.
func (s *Stage) WordAudio(ctx context.Context, lsn *lesson.Lesson, act *lesson.Activity, steps []*lesson.Step) error {
	ids := wordIDs(steps)
	if len(ids) == 0 {
		return nil
	}
	words, err := s.repos.Words.GetByIDs(dbctx.Context{Ctx: ctx}, ids)
	if err != nil {
		return fmt.Errorf("%w: load words: %v", ErrPersistFailed, err)
	}

	var needPron []string
	for _, w := range words {
		if strings.TrimSpace(w.Pronunciation) == "" {
			needPron = append(needPron, w.Word)
		}
	}
	if len(needPron) > 0 {
		if s.pronouncer == nil {
			return fmt.Errorf("%w: no pronunciation collaborator", ErrPronunciationFailed)
		}
		res := s.pronouncer.Pronounce(ctx, lsn.TargetLanguage, needPron)
		if res.Err != nil {
			return fmt.Errorf("%w: %v", ErrPronunciationFailed, res.Err)
		}
		for _, word := range needPron {
			if strings.TrimSpace(res.Data[word]) == "" {
				return fmt.Errorf("%w: missing pronunciation for %q", ErrPronunciationFailed, word)
			}
		}
		err := s.repos.Tx.InTx(ctx, func(dbc dbctx.Context) error {
			for _, w := range words {
				if strings.TrimSpace(w.Pronunciation) != "" {
					continue
				}
				p := res.Data[w.Word]
				if err := s.repos.Words.UpdateFields(dbc, w.ID, map[string]interface{}{"pronunciation": p}); err != nil {
					return err
				}
				w.Pronunciation = p
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPersistFailed, err)
		}
	}

	var jobs []speechJob
	for _, w := range words {
		if strings.TrimSpace(w.AudioURL) == "" {
			jobs = append(jobs, speechJob{id: w.ID, text: w.Word, key: fmt.Sprintf("audio/words/%s.mp3", w.ID)})
		}
	}
	urls := s.renderSpeech(ctx, act, lsn.TargetLanguage, jobs)

	return s.persistAudio(ctx, steps, urls, audioTargetWord, existingWordAudio(words))
}

// SentenceAudio renders speech for every sentence referenced by steps that
// lacks audio.
func (s *Stage) SentenceAudio(ctx context.Context, lsn *lesson.Lesson, act *lesson.Activity, steps []*lesson.Step) error {
	ids := sentenceIDs(steps)
	if len(ids) == 0 {
		return nil
	}
	sentences, err := s.repos.Sentences.GetByIDs(dbctx.Context{Ctx: ctx}, ids)
	if err != nil {
		return fmt.Errorf("%w: load sentences: %v", ErrPersistFailed, err)
	}
	var jobs []speechJob
	existing := map[uuid.UUID]string{}
	for _, se := range sentences {
		if strings.TrimSpace(se.AudioURL) != "" {
			existing[se.ID] = se.AudioURL
			continue
		}
		jobs = append(jobs, speechJob{id: se.ID, text: se.Sentence, key: fmt.Sprintf("audio/sentences/%s.mp3", se.ID)})
	}
	urls := s.renderSpeech(ctx, act, lsn.TargetLanguage, jobs)

	return s.persistAudio(ctx, steps, urls, audioTargetSentence, existing)
}

func (s *Stage) renderSpeech(ctx context.Context, act *lesson.Activity, language string, jobs []speechJob) map[uuid.UUID]string {
	out := map[uuid.UUID]string{}
	if len(jobs) == 0 {
		return out
	}
	if s.speaker == nil || s.store == nil {
		s.log.Warn("Speech rendering not configured, leaving audio empty", "activity_id", act.ID, "pending", len(jobs))
		return out
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			res := s.speaker.Speak(gctx, job.text, language)
			if res.Err != nil || len(res.Data) == 0 {
				s.log.Warn("Speech render failed", "activity_id", act.ID, "ref_id", job.id, "error", res.Err)
				return nil
			}
			ct := res.MimeType
			if ct == "" {
				ct = "audio/mpeg"
			}
			url, err := s.store.Put(gctx, job.key, res.Data, ct)
			if err != nil {
				s.log.Warn("Speech upload failed", "activity_id", act.ID, "key", job.key, "error", err)
				return nil
			}
			mu.Lock()
			out[job.id] = url
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

type audioTarget int

const (
	audioTargetWord audioTarget = iota
	audioTargetSentence
)

// persistAudio writes new URLs onto the shared rows and copies every known URL
// onto the activity's own steps, in one transaction.
func (s *Stage) persistAudio(ctx context.Context, steps []*lesson.Step, rendered map[uuid.UUID]string, target audioTarget, existing map[uuid.UUID]string) error {
	var updates []lessons.StepAssetUpdate
	for _, st := range steps {
		ref := st.WordID
		if target == audioTargetSentence {
			ref = st.SentenceID
		}
		if ref == nil {
			continue
		}
		url := rendered[*ref]
		if url == "" {
			url = existing[*ref]
		}
		if url == "" || url == st.AudioURL {
			continue
		}
		u := url
		updates = append(updates, lessons.StepAssetUpdate{ID: st.ID, AudioURL: &u})
	}
	if len(rendered) == 0 && len(updates) == 0 {
		return nil
	}

	err := s.repos.Tx.InTx(ctx, func(dbc dbctx.Context) error {
		for id, url := range rendered {
			fields := map[string]interface{}{"audio_url": url}
			var err error
			if target == audioTargetWord {
				err = s.repos.Words.UpdateFields(dbc, id, fields)
			} else {
				err = s.repos.Sentences.UpdateFields(dbc, id, fields)
			}
			if err != nil {
				return err
			}
		}
		return s.repos.Steps.ApplyAssetUpdates(dbc, updates)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	for _, st := range steps {
		for _, u := range updates {
			if u.ID == st.ID {
				st.AudioURL = *u.AudioURL
			}
		}
	}
	return nil
}

func existingWordAudio(words []*lesson.Word) map[uuid.UUID]string {
	out := map[uuid.UUID]string{}
	for _, w := range words {
		if strings.TrimSpace(w.AudioURL) != "" {
			out[w.ID] = w.AudioURL
		}
	}
	return out
}

func wordIDs(steps []*lesson.Step) []uuid.UUID {
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, st := range steps {
		if st.WordID != nil && !seen[*st.WordID] {
			seen[*st.WordID] = true
			out = append(out, *st.WordID)
		}
	}
	return out
}

func sentenceIDs(steps []*lesson.Step) []uuid.UUID {
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, st := range steps {
		if st.SentenceID != nil && !seen[*st.SentenceID] {
			seen[*st.SentenceID] = true
			out = append(out, *st.SentenceID)
		}
	}
	return out
}
