package mysql

const insertHotelSQL = `
INSERT INTO hotels
  (name, name_key, city, state, keys_count, kind, brand, parent, source_names)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const updateHotelSQL = `
UPDATE hotels SET
  name         = ?,
  name_key     = ?,
  city         = ?,
  state        = ?,
  keys_count   = ?,
  kind         = ?,
  brand        = ?,
  parent       = ?,
  source_names = ?,
  updated_at   = CURRENT_TIMESTAMP
WHERE id = ?
`

const softDeleteHotelSQL = `
UPDATE hotels SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL
`

const hotelColumns = `
  id, name, city, state, keys_count, kind, brand, parent, source_names,
  deleted_at IS NOT NULL
`

const getHotelSQL = `SELECT ` + hotelColumns + ` FROM hotels WHERE id = ?`

const listHotelsSQL = `SELECT ` + hotelColumns + ` FROM hotels WHERE deleted_at IS NULL ORDER BY name, id`

const findHotelsByNameSQL = `SELECT ` + hotelColumns + ` FROM hotels WHERE name_key = ? AND deleted_at IS NULL ORDER BY id`

// Snapshot columns are fixed per known source. The snapshots table is
// append-only; there is no UPDATE statement for it.
const snapshotColumns = `
  id, hotel_id, collected_at, method,
  google_score, google_count, google_normalized,
  booking_score, booking_count, booking_normalized,
  expedia_score, expedia_count, expedia_normalized,
  tripadvisor_score, tripadvisor_count, tripadvisor_normalized,
  weighted_average
`

const insertSnapshotSQL = `
INSERT INTO snapshots
  (hotel_id, collected_at, method,
   google_score, google_count, google_normalized,
   booking_score, booking_count, booking_normalized,
   expedia_score, expedia_count, expedia_normalized,
   tripadvisor_score, tripadvisor_count, tripadvisor_normalized,
   weighted_average)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Row lock on the hotel serializes concurrent appends for the same hotel
// and pins the current latest pointer for the O(1) comparison.
const lockHotelLatestSQL = `
SELECT h.id, s.collected_at
FROM hotels h
LEFT JOIN snapshots s ON s.id = h.latest_snapshot_id
WHERE h.id = ?
FOR UPDATE
`

const setLatestSnapshotSQL = `
UPDATE hotels SET latest_snapshot_id = ? WHERE id = ?
`

const latestSnapshotSQL = `
SELECT ` + snapshotColumns + `
FROM snapshots
WHERE id = (SELECT latest_snapshot_id FROM hotels WHERE id = ?)
`

const listSnapshotsSQL = `
SELECT ` + snapshotColumns + `
FROM snapshots
WHERE hotel_id = ?
ORDER BY collected_at, id
`

const listSnapshotsBetweenSQL = `
SELECT ` + snapshotColumns + `
FROM snapshots
WHERE hotel_id = ? AND collected_at >= ? AND collected_at < ?
ORDER BY collected_at, id
`

const insertGroupSQL = `INSERT INTO hotel_groups (name) VALUES (?)`

const updateGroupSQL = `UPDATE hotel_groups SET name = ? WHERE id = ?`

const getGroupSQL = `SELECT id, name FROM hotel_groups WHERE id = ?`

const listGroupsSQL = `SELECT id, name FROM hotel_groups ORDER BY id`

const deleteGroupSQL = `DELETE FROM hotel_groups WHERE id = ?`

const insertMemberSQL = `INSERT INTO group_members (group_id, hotel_id) VALUES (?, ?)`

const deleteMembersSQL = `DELETE FROM group_members WHERE group_id = ?`

const listMembersSQL = `SELECT hotel_id FROM group_members WHERE group_id = ? ORDER BY hotel_id`

const deleteHotelMembershipsSQL = `DELETE FROM group_members WHERE hotel_id = ?`
