package lockup

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message/catalog"
)

var builtin = newCatalog()

var texts = map[language.Tag]map[Key][2]string{
	language.English: {
		ServerDisconnected:           {"Central server disconnected", "Check the network cable and the central server."},
		ProtocolInitializing:         {"Connecting to central server", "Wait until the terminal finished its startup."},
		ProtocolInitializationFailed: {"Central server startup failed", "The terminal retries automatically. Call an attendant if this persists."},
		TransactionTimeout:           {"Transaction not confirmed", "The terminal keeps resending. Press clear to override."},
		GamePlayTimeout:              {"Game outcome not received", "The terminal recovers the game automatically. Press clear to override."},
		RecoveryFailed:               {"Game recovery failed", "The central server has no record of the game. Call an attendant."},
		PrizeCalculationError:        {"Prize verification failed", "The calculated prize does not match the central server. Call an attendant."},
		ServerPaused:                 {"Play paused by central server", "Wait until the central server resumes play."},
		ProgressiveDisabled:          {"Progressives unavailable", "Progressive levels could not be loaded from the central server."},
	},
	language.German: {
		ServerDisconnected:           {"Zentralserver getrennt", "Netzwerkkabel und Zentralserver prüfen."},
		ProtocolInitializing:         {"Verbindung zum Zentralserver", "Warten, bis das Terminal gestartet ist."},
		ProtocolInitializationFailed: {"Start am Zentralserver fehlgeschlagen", "Das Terminal versucht es automatisch erneut. Bei Wiederholung Aufsicht rufen."},
		TransactionTimeout:           {"Transaktion nicht bestätigt", "Das Terminal sendet erneut. Mit Löschen übergehen."},
		GamePlayTimeout:              {"Spielergebnis nicht empfangen", "Das Terminal stellt das Spiel automatisch wieder her. Mit Löschen übergehen."},
		RecoveryFailed:               {"Wiederherstellung fehlgeschlagen", "Der Zentralserver kennt das Spiel nicht. Aufsicht rufen."},
		PrizeCalculationError:        {"Gewinnprüfung fehlgeschlagen", "Der berechnete Gewinn weicht vom Zentralserver ab. Aufsicht rufen."},
		ServerPaused:                 {"Spiel vom Zentralserver pausiert", "Warten, bis der Zentralserver das Spiel fortsetzt."},
		ProgressiveDisabled:          {"Progressive nicht verfügbar", "Progressive Stufen konnten nicht geladen werden."},
	},
}

func newCatalog() *catalog.Builder {
	builder := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, keys := range texts {
		for key, text := range keys {
			lockup := Of(key)
			if err := builder.SetString(tag, lockup.Message, text[0]); err != nil {
				panic(err)
			}
			if err := builder.SetString(tag, lockup.HelpText, text[1]); err != nil {
				panic(err)
			}
		}
	}
	return builder
}
