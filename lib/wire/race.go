package wire

const (
	// RaceSetCount is the number of independently won race sets of a round.
	RaceSetCount = 2
	// RacesPerSet is the number of horse-selection slots in a race set.
	RacesPerSet = 5
	// HorsesPerRace is the number of finishing positions compared per slot.
	HorsesPerRace = 8
)

// Race holds the selected and the actual finishing order of one slot.
type Race struct {
	Selected []byte
	Actual   []byte
}

func (m *Race) appendTo(b []byte) []byte {
	b = appendBytes(b, 1, m.Selected)
	return appendBytes(b, 2, m.Actual)
}

func (m *Race) readField(f field) error {
	switch f.num {
	case 1:
		m.Selected = append([]byte(nil), f.bytes...)
	case 2:
		m.Actual = append([]byte(nil), f.bytes...)
	}
	return nil
}

// RaceSet is one race set of a round together with the prize the server awarded for it.
type RaceSet struct {
	Races []Race
	Prize string
}

func (m *RaceSet) appendTo(b []byte) []byte {
	for i := range m.Races {
		b = appendMessage(b, 1, &m.Races[i])
	}
	return appendString(b, 2, m.Prize)
}

func (m *RaceSet) readField(f field) error {
	switch f.num {
	case 1:
		var race Race
		if err := readMessage(f, &race); err != nil {
			return err
		}
		m.Races = append(m.Races, race)
	case 2:
		m.Prize = f.string()
	}
	return nil
}
