package sqlinline

const QCreateProjectsTable = `--sql a862e4fb-a662-4394-9440-7cc0cdcc716d
create table if not exists movie_projects (
  id uuid primary key,
  status text not null,
  document jsonb not null,
  created_at timestamptz not null default now(),
  updated_at timestamptz not null default now()
);
`

const QCreateProjectsCreatedIndex = `--sql 11b997d7-bfc3-4ba4-bd40-9d5adfd7ab34
create index if not exists movie_projects_created_at_idx on movie_projects (created_at, id);
`

const QInsertProject = `--sql 446d8d25-8c2f-4836-b9d7-537221beea99
insert into movie_projects (id, status, document, created_at, updated_at)
values ($1::uuid, $2::text, $3::jsonb, $4::timestamptz, $5::timestamptz)
on conflict (id) do update
set status = excluded.status,
    document = excluded.document,
    updated_at = excluded.updated_at;
`

const QSelectProject = `--sql 980ecd7b-5551-48a4-abd4-9758abc0bb75
select document
from movie_projects
where id = $1::uuid
limit 1;
`

const QSelectProjectForUpdate = `--sql 26d7bfd3-c71d-43f0-b397-ad50c5cddec9
select document
from movie_projects
where id = $1::uuid
for update;
`

const QUpdateProject = `--sql dceac102-f56c-4c19-aae9-c7c5a3d41e20
update movie_projects
set status = $2::text,
    document = $3::jsonb,
    updated_at = $4::timestamptz
where id = $1::uuid;
`

const QDeleteProject = `--sql 72b591f4-18c1-4ce7-8f62-3410a04ef796
delete from movie_projects
where id = $1::uuid;
`

const QListProjects = `--sql 7fb0dc74-b924-4577-973d-06e0e7c84d8a
select document
from movie_projects
order by created_at asc, id asc;
`
