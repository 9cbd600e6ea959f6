/*
Session computes regular-trading-hours windows for US equities.

# Module
  - calendar: trading-day validity and RTH window per date
  - holidays: minimal fixed list, not a full exchange calendar

# Source
  - none, pure function of the date

# Produce
  - model.Session values for the feed controller and the bar loader
*/
package session
