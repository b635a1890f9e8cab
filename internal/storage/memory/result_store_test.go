package memory

import (
	"context"
	"testing"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
)

func TestResultStoreKeepsEntitiesUnique(t *testing.T) {
	t.Parallel()

	store := NewResultStore()
	ctx := context.Background()
	n, err := store.SaveTeamSeasons(ctx, "job-1", []crawler.TeamSeason{
		{Name: "Boston Bruins", Year: 1990},
		{Name: "Boston Bruins", Year: 1991},
		{Name: "Buffalo Sabres", Year: 1990},
	})
	if err != nil || n != 3 {
		t.Fatalf("SaveTeamSeasons() = %d, %v", n, err)
	}
	if _, err := store.SaveTeamSeasons(ctx, "", []crawler.TeamSeason{{Name: "Boston Bruins", Year: 1992}}); err != nil {
		t.Fatalf("SaveTeamSeasons() error = %v", err)
	}
	if store.Teams() != 2 {
		t.Fatalf("expected 2 team entities, got %d", store.Teams())
	}

	byJob, _ := store.TeamSeasonsByJob(ctx, "job-1")
	if len(byJob) != 3 || byJob[0].Year != 1990 || byJob[1].Year != 1991 {
		t.Fatalf("unexpected job rows %+v", byJob)
	}
	recent, _ := store.RecentTeamSeasons(ctx, 2)
	if len(recent) != 2 || recent[0].Year != 1992 {
		t.Fatalf("unexpected recent rows %+v", recent)
	}
}

func TestResultStoreFilms(t *testing.T) {
	t.Parallel()

	store := NewResultStore()
	ctx := context.Background()
	if _, err := store.SaveFilms(ctx, "job-2", []crawler.OscarFilm{
		{Title: "Argo", Year: 2012, BestPicture: true},
		{Title: "Lincoln", Year: 2012},
	}); err != nil {
		t.Fatalf("SaveFilms() error = %v", err)
	}
	if _, err := store.SaveFilms(ctx, "job-3", []crawler.OscarFilm{{Title: "Argo", Year: 2012, BestPicture: true}}); err != nil {
		t.Fatalf("SaveFilms() error = %v", err)
	}
	if store.Films() != 2 {
		t.Fatalf("expected 2 film entities, got %d", store.Films())
	}
	films, _ := store.FilmsByJob(ctx, "job-3")
	if len(films) != 1 || films[0].Title != "Argo" {
		t.Fatalf("unexpected films %+v", films)
	}
	none, _ := store.FilmsByJob(ctx, "job-404")
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", none)
	}
	recent, _ := store.RecentFilms(ctx, 0)
	if len(recent) != 3 {
		t.Fatalf("expected all rows without limit, got %d", len(recent))
	}
}
