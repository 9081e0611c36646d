package model

// Job status
type JobStatus string

const (
	JobStatusUploading  JobStatus = "uploading"
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// IsTerminal reports whether no further lifecycle writes are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// IsInFlight reports whether the job still needs status polling.
func (s JobStatus) IsInFlight() bool {
	return s == JobStatusUploading || s == JobStatusQueued || s == JobStatusProcessing
}

// Rank orders the happy path. Error shares the terminal rank of completed.
func (s JobStatus) Rank() int {
	switch s {
	case JobStatusUploading:
		return 0
	case JobStatusQueued:
		return 1
	case JobStatusProcessing:
		return 2
	case JobStatusCompleted, JobStatusError:
		return 3
	}
	return -1
}

// Stage is the display phase shown while a card is being graded.
type Stage string

const (
	StageUploading       Stage = "uploading"
	StageQueued          Stage = "queued"
	StageIdentifying     Stage = "identifying"
	StageGrading         Stage = "grading"
	StageCalculating     Stage = "calculating"
	StageSaving          Stage = "saving"
	StageExtendedGrading Stage = "extended_grading"
	StageCompleted       Stage = "completed"
)

var stageOrder = map[Stage]int{
	StageUploading:       0,
	StageQueued:          1,
	StageIdentifying:     2,
	StageGrading:         3,
	StageCalculating:     4,
	StageSaving:          5,
	StageExtendedGrading: 6,
	StageCompleted:       7,
}

// Rank returns the position of the stage in the grading timeline.
func (s Stage) Rank() int {
	if r, ok := stageOrder[s]; ok {
		return r
	}
	return -1
}

// Card categories
type Category string

const (
	CategorySports  Category = "sports"
	CategoryPokemon Category = "pokemon"
	CategoryMagic   Category = "magic"
	CategoryYugioh  Category = "yugioh"
	CategoryLorcana Category = "lorcana"
	CategoryOther   Category = "other"
)

var ValidCategories = []Category{
	CategorySports, CategoryPokemon, CategoryMagic,
	CategoryYugioh, CategoryLorcana, CategoryOther,
}

// PathSegment returns the backend route segment that serves cards of this category.
func (c Category) PathSegment() string {
	switch c {
	case CategorySports:
		return "sports-cards"
	case CategoryPokemon:
		return "pokemon-cards"
	case CategoryMagic:
		return "mtg-cards"
	case CategoryYugioh:
		return "yugioh-cards"
	case CategoryLorcana:
		return "lorcana-cards"
	}
	return "other-cards"
}

// DisplayName is used in user-facing notifications.
func (c Category) DisplayName() string {
	switch c {
	case CategorySports:
		return "sports"
	case CategoryPokemon:
		return "Pokémon"
	case CategoryMagic:
		return "Magic: The Gathering"
	case CategoryYugioh:
		return "Yu-Gi-Oh!"
	case CategoryLorcana:
		return "Lorcana"
	}
	return "trading"
}
