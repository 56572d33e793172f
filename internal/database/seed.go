package database

// Starter content installed by `prayloop init` so the pipeline can run
// before any custom themes are added. Verse texts are KJV (public domain)
// and must never be edited in place; the pipeline only copies them verbatim.

type seedVerse struct {
	Reference string
	Text      string
}

type seedTheme struct {
	Slug        string
	Name        string
	Tone        string
	Description string
	Hook        string
	Keywords    []string
	Verses      []seedVerse
}

var starterThemes = []seedTheme{
	{
		Slug:        "grief",
		Name:        "Grief",
		Tone:        "comforting",
		Description: "Comfort for loss and mourning.",
		Hook:        "Are you carrying a loss today?",
		Keywords:    []string{"candle light", "ocean waves", "quiet forest"},
		Verses: []seedVerse{
			{"Psalm 23:4", "Yea, though I walk through the valley of the shadow of death, I will fear no evil: for thou art with me; thy rod and thy staff they comfort me."},
			{"Psalm 34:18", "The LORD is nigh unto them that are of a broken heart; and saveth such as be of a contrite spirit."},
			{"Matthew 5:4", "Blessed are they that mourn: for they shall be comforted."},
		},
	},
	{
		Slug:        "health",
		Name:        "Health",
		Tone:        "hopeful",
		Description: "Strength through illness and recovery.",
		Hook:        "Is your body or spirit weary?",
		Keywords:    []string{"sunrise mountains", "gentle rain", "green meadow"},
		Verses: []seedVerse{
			{"Isaiah 41:10", "Fear thou not; for I am with thee: be not dismayed; for I am thy God: I will strengthen thee; yea, I will help thee; yea, I will uphold thee with the right hand of my righteousness."},
			{"Psalm 73:26", "My flesh and my heart faileth: but God is the strength of my heart, and my portion for ever."},
		},
	},
	{
		Slug:        "worry",
		Name:        "Worry",
		Tone:        "calming",
		Description: "Peace in anxious seasons.",
		Hook:        "Is something keeping you up at night?",
		Keywords:    []string{"still lake", "starry sky", "slow clouds"},
		Verses: []seedVerse{
			{"Philippians 4:6", "Be careful for nothing; but in every thing by prayer and supplication with thanksgiving let your requests be made known unto God."},
			{"Matthew 11:28", "Come unto me, all ye that labour and are heavy laden, and I will give you rest."},
			{"1 Peter 5:7", "Casting all your care upon him; for he careth for you."},
		},
	},
	{
		Slug:        "guidance",
		Name:        "Guidance",
		Tone:        "encouraging",
		Description: "Direction for uncertain decisions.",
		Hook:        "Are you facing a decision you can't see past?",
		Keywords:    []string{"forest path", "lighthouse coast", "open road"},
		Verses: []seedVerse{
			{"Proverbs 3:5-6", "Trust in the LORD with all thine heart; and lean not unto thine own understanding. In all thy ways acknowledge him, and he shall direct thy paths."},
			{"Joshua 1:9", "Have not I commanded thee? Be strong and of a good courage; be not afraid, neither be thou dismayed: for the LORD thy God is with thee whithersoever thou goest."},
		},
	},
}

// SeedStarterContent installs the starter themes and verses. Existing slugs
// and references are left untouched, so re-running is safe. Returns counts
// of inserted themes and verses.
func (db *DB) SeedStarterContent() (int, int, error) {
	var themes, verses int
	for _, st := range starterThemes {
		desc := st.Description
		hook := st.Hook
		themeID, err := db.InsertTheme(st.Slug, st.Name, st.Tone, &desc, &hook, st.Keywords)
		if err != nil {
			return themes, verses, err
		}
		if themeID == 0 {
			existing, err := db.GetThemeBySlug(st.Slug)
			if err != nil {
				return themes, verses, err
			}
			themeID = existing.ID
		} else {
			themes++
		}

		for _, sv := range st.Verses {
			id, err := db.InsertVerse(sv.Reference, sv.Text, "KJV", themeID)
			if err != nil {
				return themes, verses, err
			}
			if id != 0 {
				verses++
			}
		}
	}
	return themes, verses, nil
}
