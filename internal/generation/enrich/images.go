package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/yungbote/lessonforge/internal/data/repos/lessons"
	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
)

type renderJob struct {
	step   int
	option int // -1 for the step's own visual
	prompt string
	key    string
}

// Images renders every requested asset that lacks a URL. A failed render only
// omits that URL; a failed write of the rendered URLs is returned.
func (s *Stage) Images(ctx context.Context, lessonID uuid.UUID, act *lesson.Activity, steps []*lesson.Step) ([]*lesson.Step, error) {
	jobs := collectImageJobs(lessonID, act, steps)
	if len(jobs) == 0 {
		return steps, nil
	}
	if s.images == nil || s.store == nil {
		s.log.Warn("Image rendering not configured, leaving assets empty", "activity_id", act.ID, "pending", len(jobs))
		return steps, nil
	}

	urls := make([]string, len(jobs))
	var failed int
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range jobs {
		i := i
		job := jobs[i]
		g.Go(func() error {
			res := s.images.Render(gctx, job.prompt)
			if res.Err != nil || len(res.Data) == 0 {
				mu.Lock()
				failed++
				mu.Unlock()
				s.log.Warn("Image render failed", "activity_id", act.ID, "step", job.step, "option", job.option, "error", res.Err)
				return nil
			}
			url, err := s.store.Put(gctx, job.key, res.Data, res.MimeType)
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				s.log.Warn("Image upload failed", "activity_id", act.ID, "key", job.key, "error", err)
				return nil
			}
			urls[i] = url
			return nil
		})
	}
	_ = g.Wait()

	updates, err := applyImageURLs(steps, jobs, urls)
	if err != nil {
		return steps, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	if len(updates) > 0 {
		if err := s.repos.Steps.ApplyAssetUpdates(dbctx.Context{Ctx: ctx}, updates); err != nil {
			return steps, fmt.Errorf("%w: %v", ErrPersistFailed, err)
		}
	}
	s.log.Info("Images rendered", "activity_id", act.ID, "requested", len(jobs), "failed", failed)
	return steps, nil
}

func collectImageJobs(lessonID uuid.UUID, act *lesson.Activity, steps []*lesson.Step) []renderJob {
	var jobs []renderJob
	prefix := fmt.Sprintf("lessons/%s/%s", lessonID, act.ID)
	for i, st := range steps {
		if st == nil {
			continue
		}
		if v := st.DecodeVisual(); v.WantsImage() && strings.TrimSpace(st.ImageURL) == "" {
			jobs = append(jobs, renderJob{step: i, option: -1, prompt: v.Prompt, key: fmt.Sprintf("%s/%s.png", prefix, st.ID)})
		}
		if st.Kind == lesson.StepSelectImage {
			var c lesson.SelectImageContent
			if err := json.Unmarshal(st.Content, &c); err != nil {
				continue
			}
			for _, o := range c.MissingImages() {
				jobs = append(jobs, renderJob{
					step:   i,
					option: o,
					prompt: c.Options[o].Prompt,
					key:    fmt.Sprintf("%s/%s-%s.png", prefix, st.ID, c.Options[o].ID),
				})
			}
		}
	}
	return jobs
}

// applyImageURLs folds rendered URLs into the in-memory steps and returns the
// matching row updates.
func applyImageURLs(steps []*lesson.Step, jobs []renderJob, urls []string) ([]lessons.StepAssetUpdate, error) {
	byStep := map[int][]int{}
	for i, j := range jobs {
		if urls[i] != "" {
			byStep[j.step] = append(byStep[j.step], i)
		}
	}
	var out []lessons.StepAssetUpdate
	for stepIdx, jobIdxs := range byStep {
		st := steps[stepIdx]
		u := lessons.StepAssetUpdate{ID: st.ID}
		var content *lesson.SelectImageContent
		for _, ji := range jobIdxs {
			j := jobs[ji]
			if j.option < 0 {
				url := urls[ji]
				u.ImageURL = &url
				st.ImageURL = url
				continue
			}
			if content == nil {
				content = &lesson.SelectImageContent{}
				if err := json.Unmarshal(st.Content, content); err != nil {
					return nil, err
				}
			}
			content.Options[j.option].ImageURL = urls[ji]
		}
		if content != nil {
			raw, err := json.Marshal(content)
			if err != nil {
				return nil, err
			}
			u.Content = datatypes.JSON(raw)
			st.Content = u.Content
		}
		out = append(out, u)
	}
	return out, nil
}
