package usecase

import (
	"slices"
	"strings"
	"unicode"

	"IssueSync/internal/config"
	"IssueSync/internal/domain"
)

// MergeIssue folds a remote issue into its matched local task: static fields
// are dropped from the issue, annotations and tags are merged under the main
// policies, and the remaining fields overwrite the task.
func MergeIssue(task *domain.Task, issue domain.Issue, main config.MainConfig, target config.ServiceConfig) {
	for _, field := range slices.Concat(main.StaticFields, target.StaticFields) {
		delete(issue, field)
	}

	if main.MergeAnnotations {
		MergeLeft(domain.FieldAnnotations, task, issue, true)
	}

	if main.MergeTags {
		if main.ReplaceTags {
			ReplaceLeft(domain.FieldTags, task, issue, main.StaticTags)
		} else {
			MergeLeft(domain.FieldTags, task, issue, false)
		}
	}

	delete(issue, domain.FieldAnnotations)
	delete(issue, domain.FieldTags)
	task.Update(issue)
}

// MergeLeft appends the remote items missing from the task's list. With
// hamming set, items match when they are near-equal annotations.
func MergeLeft(field string, task *domain.Task, issue domain.Issue, hamming bool) {
	merged := task.Strings(field)
	if merged == nil {
		merged = []string{}
	}

	for _, remote := range issue.Strings(field) {
		found := slices.ContainsFunc(merged, func(local string) bool {
			return remote == local || (hamming && AnnotationsMatch(remote, local))
		})
		if !found {
			merged = append(merged, remote)
		}
	}
	task.Set(field, merged)
}

// ReplaceLeft makes the task's list follow the remote one: local items that
// are neither kept nor remote are dropped, new remote items are appended.
func ReplaceLeft(field string, task *domain.Task, issue domain.Issue, keep []string) {
	remote := issue.Strings(field)
	result := []string{}

	for _, item := range task.Strings(field) {
		idx := slices.Index(remote, item)
		if idx < 0 && !slices.Contains(keep, item) {
			continue
		}
		result = append(result, item)
		if idx >= 0 {
			remote = slices.Delete(remote, idx, idx+1)
		}
	}
	task.Set(field, append(result, remote...))
}

// AnnotationsMatch compares two annotations ignoring everything but letters
// and digits, over the length of the shorter one.
func AnnotationsMatch(left, right string) bool {
	l, r := normalizeAnnotation(left), normalizeAnnotation(right)
	n := min(len(l), len(r))
	return hammingDistance(l[:n], r[:n]) == 0
}

func normalizeAnnotation(s string) []rune {
	return []rune(strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s))
}

func hammingDistance(a, b []rune) int {
	distance := 0
	for i := range a {
		if a[i] != b[i] {
			distance++
		}
	}
	return distance
}
