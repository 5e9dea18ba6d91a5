// Package common contains the pieces shared by the library packages and the command line tool:
//
//   - logger: a custom formatter for dragonboats logger.ILogger, used by every package of paperKV
//     (and by dragonboat itself when books are replicated)
//   - config: the BookConfig and ServerConfig structs with their human-readable String() reports
package common
